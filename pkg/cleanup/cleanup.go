// Package cleanup collects shutdown jobs registered during startup and
// runs them when the process exits.
package cleanup

import "log/slog"

var (
	jobs = make([]*Job, 0)
)

type Job struct {
	Name string
	Func func() error
}

func Register(j *Job) {
	jobs = append(jobs, j)
}

// CleanUp runs registered jobs in reverse registration order, so resources
// shut down before the things they depend on.
func CleanUp() {
	slog.Info("cleaning up resources...")
	for i := len(jobs) - 1; i >= 0; i-- {
		j := jobs[i]
		slog.Info("running cleanup job", slog.String("name", j.Name))
		if err := j.Func(); err != nil {
			slog.Error("error cleaning", slog.String("name", j.Name), slog.String("error", err.Error()))
		}
	}
	slog.Info("cleanup done")
}
