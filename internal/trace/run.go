package trace

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/AnatoleLucet/loom"
	"github.com/AnatoleLucet/loom/internal/memhost"
)

type StepResult struct {
	Kind string
	Ops  []string
	HTML string
}

type Result struct {
	Name       string
	Concurrent bool
	Steps      []StepResult
	Commits    int
}

// Run applies every step of s to a fresh root and records what each step
// did to the host. The scheduler is flushed after every step.
func Run(s *Scenario, cfg loom.Config, log *logrus.Entry) (*Result, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("scenario", s.Name)

	cfg.ConcurrentMode = cfg.ConcurrentMode || s.Concurrent

	host := memhost.New()
	container := host.NewContainer("root")
	sched := loom.NewScheduler(loom.WithSchedulerLogger(log))

	var uncaught error
	root := loom.NewRoot(sched, host, container, cfg,
		loom.WithLogger(log),
		loom.WithUncaughtErrorHandler(func(err error) { uncaught = err }),
	)

	res := &Result{Name: s.Name, Concurrent: cfg.ConcurrentMode}
	for i, step := range s.Steps {
		host.ClearLog()

		var err error
		if step.Unmount {
			err = root.Unmount()
		} else {
			err = root.Render(step.Render.Element())
		}
		if err == nil {
			err = sched.Flush()
		}
		if err == nil {
			err = uncaught
		}
		if err != nil {
			return nil, errors.Wrapf(err, "step %d", i+1)
		}

		res.Steps = append(res.Steps, StepResult{
			Kind: step.kind(),
			Ops:  host.Log(),
			HTML: host.String(container),
		})
		log.WithFields(logrus.Fields{
			"step": i + 1,
			"ops":  len(res.Steps[i].Ops),
		}).Debug("step applied")
	}
	res.Commits = host.Commits()
	return res, nil
}

// Format writes res as plain text, one indented line per host operation.
// The text is built first and written with a single call.
func Format(w io.Writer, res *Result) error {
	mode := "legacy"
	if res.Concurrent {
		mode = "concurrent"
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "scenario: %s\nmode: %s\n", res.Name, mode)
	for i, step := range res.Steps {
		fmt.Fprintf(&buf, "\nstep %d: %s\n", i+1, step.Kind)
		for _, op := range step.Ops {
			fmt.Fprintf(&buf, "  %s\n", op)
		}
		html := step.HTML
		if html == "" {
			html = "(empty)"
		}
		fmt.Fprintf(&buf, "  html: %s\n", html)
	}
	fmt.Fprintf(&buf, "\ncommits: %d\n", res.Commits)

	_, err := buf.WriteTo(w)
	return errors.Wrap(err, "write trace")
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
