// Package fatal 은 데드라인이 지났을 때 워치독 코어가 호출하는 halt 전략을
// 제공한다.
package fatal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/moby/moby/client"

	watchdog "smart-watchdog/internal/core"
)

// New 는 cfg.FatalAction 이 가리키는 액션을 만든다. cli 는 container 액션에서만
// 쓰이며 그 외에는 nil 이어도 된다.
func New(cfg watchdog.Config, cli *client.Client, logger *slog.Logger) (watchdog.FatalAction, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	exit := NewExit(cfg.ExitCode, logger)

	switch cfg.FatalAction {
	case "", "exit":
		return exit, nil
	case "panic":
		return Panic{}, nil
	case "reboot":
		return NewReboot(exit, logger), nil
	case "container":
		if cli == nil {
			return nil, fmt.Errorf("fatal action container: docker client is required")
		}
		if cfg.FatalContainer == "" {
			return nil, fmt.Errorf("fatal action container: container name is required")
		}
		return NewContainerRestart(cfg.FatalContainer, DockerRestart(cli), exit, logger), nil
	default:
		return nil, fmt.Errorf("unknown fatal action %q", cfg.FatalAction)
	}
}

// Exit 는 supervisor 가 재시작하도록 고정 코드로 프로세스를 끝낸다.
type Exit struct {
	code   int
	logger *slog.Logger
	exit   func(int)
}

// NewExit 는 종료 코드로 프로세스를 끝내는 액션을 만든다.
func NewExit(code int, logger *slog.Logger) *Exit {
	if code <= 0 {
		code = 1
	}
	return &Exit{code: code, logger: logger, exit: os.Exit}
}

func (e *Exit) Halt(_ context.Context, cause error) {
	e.logger.Error("fatal_exit", "code", e.code, "err", cause)
	e.exit(e.code)
}

// Panic 은 호출 고루틴을 panic 시켜 프로세스를 끝낸다.
type Panic struct{}

func (Panic) Halt(_ context.Context, cause error) {
	panic(fmt.Errorf("watchdog halt: %w", cause))
}
