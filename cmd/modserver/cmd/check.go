package cmd

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/GoCodeAlone/modserver"
)

// Summary is the report printed by the check command.
type Summary struct {
	Dir           string              `yaml:"dir"`
	Env           string              `yaml:"env"`
	LoadedAt      time.Time           `yaml:"loadedAt"`
	Modules       []string            `yaml:"modules"`
	ResourceTypes []string            `yaml:"resourceTypes"`
	Resources     []ResourceSummary   `yaml:"resources"`
	Middleware    map[string][]string `yaml:"middleware"`
}

// ResourceSummary is one resource in a Summary.
type ResourceSummary struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// NewCheckCommand creates the check command
func NewCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Load the app once and print what was assembled",
		Long: `Check runs one full load of the app directory and prints the modules,
resource types, resources and middleware stacks it produced. Module and
resource failures are reported instead of terminating the process.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := LoadOptions(cmd)
			if err != nil {
				return err
			}
			logger, err := newLogger(cmd.ErrOrStderr(), opts.LogLevel, opts.LogFormat)
			if err != nil {
				return err
			}

			var (
				mu    sync.Mutex
				fatal []error
			)
			a, err := newApp(cmd.Context(), opts, logger,
				modserver.WithFatalHandler(func(err *modserver.FatalError) {
					mu.Lock()
					defer mu.Unlock()
					fatal = append(fatal, err)
				}),
				modserver.WithConcurrency(1),
			)
			if err != nil {
				return err
			}
			defer a.Close()

			snap, err := a.runtime.GetConfig(cmd.Context())
			if err != nil {
				mu.Lock()
				defer mu.Unlock()
				return errors.Join(append([]error{err}, fatal...)...)
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(Summarize(opts, snap)); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

// Summarize builds the check report for snap.
func Summarize(opts ServerOptions, snap *modserver.Snapshot) Summary {
	s := Summary{
		Dir:           opts.Dir,
		Env:           opts.Env,
		LoadedAt:      snap.LoadedAt,
		Modules:       snap.ModuleIDs(),
		ResourceTypes: make([]string, 0, len(snap.ResourceTypes)),
		Resources:     make([]ResourceSummary, 0, len(snap.Resources)),
		Middleware:    make(map[string][]string, len(snap.Middleware)),
	}
	for id := range snap.ResourceTypes {
		s.ResourceTypes = append(s.ResourceTypes, id)
	}
	slices.Sort(s.ResourceTypes)
	for _, r := range snap.Resources {
		s.Resources = append(s.Resources, ResourceSummary{Name: r.Name(), Type: r.Type()})
	}
	for point, stack := range snap.Middleware {
		labels := make([]string, 0, len(stack))
		for _, entry := range stack {
			labels = append(labels, entry.Label())
		}
		s.Middleware[point] = labels
	}
	return s
}
