package shell

import (
	"errors"
	"fmt"
	"regexp"

	"meatycapture/internal/appctx"
)

var ErrForbidden = errors.New("command not allowed by shell scope")

type argRule struct {
	value string
	re    *regexp.Regexp
}

func (r argRule) allows(arg string) bool {
	if r.re != nil {
		return r.re.MatchString(arg)
	}
	return r.value == arg
}

type program struct {
	name    string
	cmd     string
	rules   []argRule
	anyArgs bool
	env     map[string]struct{}
}

// Scope is the compiled set of programs the frontend may run.
type Scope struct {
	programs map[string]program
	open     bool
}

func NewScope(cfg appctx.Shell) (*Scope, error) {
	s := &Scope{programs: make(map[string]program, len(cfg.Scope)), open: cfg.Open}

	for _, sc := range cfg.Scope {
		prog := program{name: sc.Name, cmd: sc.Cmd, anyArgs: sc.AnyArgs, env: make(map[string]struct{}, len(sc.Env))}
		for _, key := range sc.Env {
			prog.env[key] = struct{}{}
		}
		for i, a := range sc.Args {
			if a.Validator == "" {
				prog.rules = append(prog.rules, argRule{value: a.Value})
				continue
			}
			re, err := regexp.Compile(`^(?:` + a.Validator + `)$`)
			if err != nil {
				return nil, fmt.Errorf("shell scope %s arg %d: %w", sc.Name, i, err)
			}
			prog.rules = append(prog.rules, argRule{re: re})
		}
		s.programs[sc.Name] = prog
	}
	return s, nil
}

// Command checks name and args against the scope and returns the
// executable to run.
func (s *Scope) Command(name string, args []string) (string, error) {
	prog, ok := s.programs[name]
	if !ok {
		return "", fmt.Errorf("%w: unknown program %q", ErrForbidden, name)
	}
	if prog.anyArgs {
		return prog.cmd, nil
	}
	if len(args) != len(prog.rules) {
		return "", fmt.Errorf("%w: %s expects %d arguments, got %d", ErrForbidden, name, len(prog.rules), len(args))
	}
	for i, arg := range args {
		if !prog.rules[i].allows(arg) {
			return "", fmt.Errorf("%w: %s argument %d rejected", ErrForbidden, name, i)
		}
	}
	return prog.cmd, nil
}

// CheckEnv rejects environment variables the program's scope entry does
// not list.
func (s *Scope) CheckEnv(name string, env map[string]string) error {
	prog, ok := s.programs[name]
	if !ok {
		return fmt.Errorf("%w: unknown program %q", ErrForbidden, name)
	}
	for key := range env {
		if _, allowed := prog.env[key]; !allowed {
			return fmt.Errorf("%w: %s may not set %s", ErrForbidden, name, key)
		}
	}
	return nil
}
