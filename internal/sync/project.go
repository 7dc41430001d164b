package sync

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

var ErrReadProjects = errors.New("failed to read projects file")

// Project is one managed research project. Its code derives the directory
// group names; its folder name is the team folder it owns remotely.
type Project struct {
	ResearchCode string `json:"research_code"`
	TeamFolder   string `json:"team_folder"`
}

func (p Project) GroupRW(suffix string) string {
	return fmt.Sprintf("%s_rw.%s", p.ResearchCode, suffix)
}

func (p Project) GroupRO(suffix string) string {
	return fmt.Sprintf("%s_ro.%s", p.ResearchCode, suffix)
}

func (p Project) GroupTraverse(suffix string) string {
	return fmt.Sprintf("%s_t.%s", p.ResearchCode, suffix)
}

// LoadProjects reads the ordered list of managed projects. Order matters:
// projects are reconciled in file order so operators can front-load the
// important ones.
func LoadProjects(path string) ([]Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadProjects, err)
	}

	var projects []Project

	err = json.Unmarshal(data, &projects)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadProjects, err)
	}

	for i, p := range projects {
		if p.ResearchCode == "" || p.TeamFolder == "" {
			return nil, fmt.Errorf("%w: entry %d is missing research_code or team_folder", ErrReadProjects, i)
		}
	}

	return projects, nil
}

// ManagedGroupNames returns every directory group name derived from the
// projects, including the traverse names that never become remote groups.
func ManagedGroupNames(projects []Project, suffix string) map[string]bool {
	names := make(map[string]bool, len(projects)*3)

	for _, p := range projects {
		names[p.GroupRW(suffix)] = true
		names[p.GroupRO(suffix)] = true
		names[p.GroupTraverse(suffix)] = true
	}

	return names
}
