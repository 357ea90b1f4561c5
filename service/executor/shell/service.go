// Package shell runs launch commands in gosh shell sessions, locally or over
// ssh.  Every launch gets its own session and runs inside a subshell, so
// neither an exiting command nor its directory or environment changes reach
// another launch.
package shell

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/viant/afs/url"
	"github.com/viant/gosh"
	"github.com/viant/gosh/runner"
	"github.com/viant/gosh/runner/local"
	rssh "github.com/viant/gosh/runner/ssh"
	"github.com/viant/opflow/internal/clock"
	"github.com/viant/opflow/internal/logger"
	"github.com/viant/opflow/model"
	"github.com/viant/opflow/service/executor"
	"github.com/viant/scy/cred/secret"
	"golang.org/x/crypto/ssh"
)

// LocalHost is the default host URL
const LocalHost = "bash://localhost/"

// Config represents shell executor configuration
type Config struct {
	// Host is the default host URL, e.g. bash://localhost/ or ssh://build-01:22
	Host string `json:"host,omitempty" yaml:"host,omitempty"`
	// Credentials is a scy secret reference used for ssh hosts
	Credentials string `json:"credentials,omitempty" yaml:"credentials,omitempty"`
	// Timeout applies to launches without their own deadline
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// DefaultConfig returns the default shell configuration
func DefaultConfig() Config {
	return Config{
		Host:    LocalHost,
		Timeout: 24 * time.Hour,
	}
}

// Service executes launch commands
type Service struct {
	config Config
	// sessions holds the sessions of in-flight launches keyed by launch id
	sessions map[string]*gosh.Service
	mux      sync.Mutex
}

var _ executor.Service = (*Service)(nil)

// New creates a shell executor
func New(config Config) *Service {
	if config.Host == "" {
		config.Host = LocalHost
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	return &Service{config: config, sessions: make(map[string]*gosh.Service)}
}

// Execute runs the launch command in a fresh session and returns its exit
// status
func (s *Service) Execute(ctx context.Context, launch *model.Launch) *executor.Result {
	if strings.TrimSpace(launch.Command) == "" {
		return executor.Failure(executor.ExitFailure, fmt.Sprintf("%v: empty command", launch))
	}
	host := launch.Host
	if host == "" {
		host = s.config.Host
	}
	key := sessionKey(host, launch)
	session, err := s.openSession(ctx, key, host)
	if err != nil {
		return executor.Failure(executor.ExitFailure, fmt.Sprintf("failed to open session for %v: %v", launch, err))
	}
	defer s.closeSession(key)

	timeout := launch.Timeout
	if timeout <= 0 {
		timeout = s.config.Timeout
	}
	started := clock.Now()
	output, status, err := session.Run(ctx, script(launch), runner.WithTimeout(int(timeout.Milliseconds())))
	if elapsed := clock.Since(started); elapsed >= timeout || errors.Is(err, context.DeadlineExceeded) {
		expired := *launch
		expired.Timeout = timeout
		return executor.Timeout(&expired)
	}
	if err == nil && status == 0 {
		return executor.Success(output)
	}
	diagnostic := strings.TrimSpace(output)
	if err != nil {
		if diagnostic != "" {
			diagnostic += "\n"
		}
		diagnostic += err.Error()
	}
	return executor.Failure(status, diagnostic)
}

// openSession starts the session of a single launch
func (s *Service) openSession(ctx context.Context, key, host string) (*gosh.Service, error) {
	var service *gosh.Service
	var err error
	if url.Host(host) == "localhost" || url.Scheme(host, "bash") != "ssh" {
		service, err = gosh.New(ctx, local.New())
	} else {
		var config *ssh.ClientConfig
		if config, err = s.sshConfig(ctx); err != nil {
			return nil, fmt.Errorf("failed to get SSH config: %w", err)
		}
		sshHost := url.Host(host)
		if !strings.Contains(sshHost, ":") {
			sshHost += ":22"
		}
		service, err = gosh.New(ctx, rssh.New(sshHost, config))
	}
	if err != nil {
		return nil, err
	}
	s.mux.Lock()
	s.sessions[key] = service
	s.mux.Unlock()
	logger.Debug(ctx, "shell session started", "host", host, "session", key)
	return service, nil
}

func (s *Service) sshConfig(ctx context.Context) (*ssh.ClientConfig, error) {
	credentials := s.config.Credentials
	if credentials == "" {
		credentials = "localhost"
	}
	secrets := secret.New()
	generic, err := secrets.GetCredentials(ctx, credentials)
	if err != nil {
		return nil, err
	}
	return generic.SSH.Config(ctx)
}

func (s *Service) closeSession(key string) {
	s.mux.Lock()
	session, ok := s.sessions[key]
	delete(s.sessions, key)
	s.mux.Unlock()
	if ok {
		_ = session.Close()
	}
}

// Close terminates the sessions of in-flight launches
func (s *Service) Close() error {
	s.mux.Lock()
	defer s.mux.Unlock()
	var errs []string
	for id, session := range s.sessions {
		if err := session.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("failed to close session %s: %v", id, err))
		}
	}
	s.sessions = make(map[string]*gosh.Service)
	if len(errs) > 0 {
		return fmt.Errorf("errors closing sessions: %s", strings.Join(errs, "; "))
	}
	return nil
}

// script wraps the launch command in a subshell that exports the launch
// environment and enters the working directory.  An exit in the command
// ends the subshell only and its status becomes the launch status.
func script(launch *model.Launch) string {
	var builder strings.Builder
	builder.WriteString("(")
	builder.WriteString(exportCommand(launch))
	if launch.Workdir != "" {
		builder.WriteString("; cd " + quote(launch.Workdir) + " || exit 1")
	}
	builder.WriteString("; eval " + quote(launch.Command) + ")")
	return builder.String()
}

// exportCommand sets the launch environment
func exportCommand(launch *model.Launch) string {
	env := map[string]string{
		"OPFLOW_OPERATION": launch.Operation,
		"OPFLOW_CONFIG":    launch.Config,
		"OPFLOW_SLOT":      strconv.Itoa(launch.Slot),
	}
	for k, v := range launch.Env {
		env[k] = v
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var builder strings.Builder
	builder.WriteString("export")
	for _, k := range keys {
		builder.WriteString(" " + k + "=" + quote(env[k]))
	}
	return builder.String()
}

func quote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", `'"'"'`) + "'"
}

// sessionKey is unique per launch; the slot keeps keys of launches without
// an id apart.
func sessionKey(host string, launch *model.Launch) string {
	return host + "#" + launch.Operation + "#" + strconv.Itoa(launch.Slot) + "#" + launch.ID
}
