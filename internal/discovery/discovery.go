// Package discovery walks a workspace root for projects and specs: any
// directory containing the configured workflow marker subdirectory is a
// project, and each spec is a subdirectory of the marker holding the
// configured tasks file. This is the external collaborator the core
// depends on only through the poller's Membership function — the core
// itself never walks a filesystem tree.
package discovery

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/orchestrator/taskrunner/internal/poller"
)

// Spec is one discovered (project, spec) pair with its tasks file and a
// dedicated log directory.
type Spec struct {
	ProjectPath string
	SpecName    string
	TasksPath   string
	LogDir      string
}

// Walker scans a workspace root for projects and specs.
type Walker struct {
	WorkspaceRoot   string
	WorkflowDirName string
	TasksFilename   string
}

// New builds a Walker over root, identifying projects by the presence of a
// workflowDirName subdirectory and specs by tasksFilename within it.
func New(root, workflowDirName, tasksFilename string) *Walker {
	return &Walker{WorkspaceRoot: root, WorkflowDirName: workflowDirName, TasksFilename: tasksFilename}
}

// Scan performs one pass over WorkspaceRoot. It does not recurse into a
// project once found (nested projects are not supported) and tolerates
// unreadable subdirectories by skipping them.
func (w *Walker) Scan() ([]Spec, error) {
	entries, err := os.ReadDir(w.WorkspaceRoot)
	if err != nil {
		return nil, err
	}

	var specs []Spec
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		projectPath := filepath.Join(w.WorkspaceRoot, e.Name())
		marker := filepath.Join(projectPath, w.WorkflowDirName)
		info, err := os.Stat(marker)
		if err != nil || !info.IsDir() {
			continue
		}
		specs = append(specs, w.scanProject(projectPath, marker)...)
	}

	sort.Slice(specs, func(i, j int) bool {
		if specs[i].ProjectPath != specs[j].ProjectPath {
			return specs[i].ProjectPath < specs[j].ProjectPath
		}
		return specs[i].SpecName < specs[j].SpecName
	})
	return specs, nil
}

func (w *Walker) scanProject(projectPath, marker string) []Spec {
	entries, err := os.ReadDir(marker)
	if err != nil {
		return nil
	}
	var specs []Spec
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		specDir := filepath.Join(marker, e.Name())
		tasksPath := filepath.Join(specDir, w.TasksFilename)
		if _, err := os.Stat(tasksPath); err != nil {
			continue
		}
		specs = append(specs, Spec{
			ProjectPath: projectPath,
			SpecName:    e.Name(),
			TasksPath:   tasksPath,
			LogDir:      filepath.Join(specDir, "logs"),
		})
	}
	return specs
}

// Membership adapts Scan to the poller's Membership function signature.
func (w *Walker) Membership() ([]poller.Target, error) {
	specs, err := w.Scan()
	if err != nil {
		return nil, err
	}
	targets := make([]poller.Target, 0, len(specs))
	for _, s := range specs {
		targets = append(targets, poller.Target{
			ProjectPath: s.ProjectPath,
			SpecName:    s.SpecName,
			TasksPath:   s.TasksPath,
			LogPath:     filepath.Join(s.LogDir, "current.log"),
		})
	}
	return targets, nil
}
