package deployment

import (
	"fmt"
	"time"
)

const (
	MethodScript = "script"
	MethodInline = "inline"

	// DefaultTimeout bounds a whole deploy.
	DefaultTimeout = 5 * time.Minute

	// LogTailBytes is how much command output a task retains.
	LogTailBytes = 4096
)

// Step is one command of a deploy.
type Step struct {
	Name    string
	Command []string
}

// Plan describes what a deploy runs after the source sync.
type Plan struct {
	Method string

	// Script is the command run by the script method.
	Script []string

	// Install, Build and Update are run in order by the inline method.
	Install [][]string
	Build   [][]string
	Update  [][]string

	HealthURL      string
	HealthDelay    time.Duration
	HealthAttempts int
	HealthInterval time.Duration

	Timeout time.Duration
}

// Steps expands the plan into the commands it runs.
func (p Plan) Steps() ([]Step, error) {
	switch p.Method {
	case MethodScript:
		if len(p.Script) == 0 {
			return nil, fmt.Errorf("script method requires a script")
		}
		return []Step{{Name: "script", Command: p.Script}}, nil
	case MethodInline:
		var steps []Step
		steps = appendSteps(steps, "install", p.Install)
		steps = appendSteps(steps, "build", p.Build)
		steps = appendSteps(steps, "update", p.Update)
		return steps, nil
	default:
		return nil, fmt.Errorf("unknown deploy method %q", p.Method)
	}
}

func appendSteps(steps []Step, name string, commands [][]string) []Step {
	for i, cmd := range commands {
		stepName := name
		if len(commands) > 1 {
			stepName = fmt.Sprintf("%s[%d]", name, i)
		}
		steps = append(steps, Step{Name: stepName, Command: cmd})
	}
	return steps
}

func (p Plan) timeout() time.Duration {
	if p.Timeout <= 0 {
		return DefaultTimeout
	}
	return p.Timeout
}
