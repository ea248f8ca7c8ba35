package main

import (
	"fmt"
	"log/slog"

	"github.com/benbjohnson/clock"
	"github.com/moby/moby/client"

	"smart-watchdog/internal/control"
	watchdog "smart-watchdog/internal/core"
	"smart-watchdog/internal/device"
	"smart-watchdog/internal/fatal"
)

// WatchdogConfigMeta 는 설정 출처 정보다.
type WatchdogConfigMeta struct {
	Source string
	Path   string
}

// DockerClientInitError 는 docker 클라이언트 생성 실패다.
type DockerClientInitError struct {
	Host string
	Err  error
}

func (e *DockerClientInitError) Error() string {
	return fmt.Sprintf("docker client init failed (host=%s): %v", e.Host, e.Err)
}

func (e *DockerClientInitError) Unwrap() error {
	return e.Err
}

// FatalActionInitError 는 fatal action 구성 실패다.
type FatalActionInitError struct {
	Action string
	Err    error
}

func (e *FatalActionInitError) Error() string {
	return fmt.Sprintf("fatal action init failed (action=%s): %v", e.Action, e.Err)
}

func (e *FatalActionInitError) Unwrap() error {
	return e.Err
}

// WatchdogRuntime 는 main 이 구동하는 구성 요소 묶음이다.
type WatchdogRuntime struct {
	DockerHost   string
	DockerClient *client.Client
	Fatal        watchdog.FatalAction
	Watchdog     *watchdog.Watchdog
	Handler      *control.Handler
	Server       *device.Server
}

// Close 는 워치독을 분리하고 docker 클라이언트를 닫는다.
func (r *WatchdogRuntime) Close(logger *slog.Logger) {
	watchdog.Detach(r.Watchdog)
	if r.DockerClient != nil {
		if err := r.DockerClient.Close(); err != nil {
			logger.Warn("docker_client_close_failed", "err", err)
		}
	}
}

func newDockerHost(cfg watchdog.Config) string {
	return "unix://" + cfg.DockerSocket
}

// newDockerClient 는 container fatal action 일 때만 docker 에 연결한다.
func newDockerClient(cfg watchdog.Config, dockerHost string) (*client.Client, error) {
	if cfg.FatalAction != "container" {
		return nil, nil
	}
	cli, err := client.New(
		client.WithHost(dockerHost),
	)
	if err != nil {
		return nil, &DockerClientInitError{Host: dockerHost, Err: err}
	}
	return cli, nil
}

func newFatalAction(cfg watchdog.Config, cli *client.Client, logger *slog.Logger) (watchdog.FatalAction, error) {
	action, err := fatal.New(cfg, cli, logger)
	if err != nil {
		return nil, &FatalActionInitError{Action: cfg.FatalAction, Err: err}
	}
	return action, nil
}

func newWatchdog(cfg watchdog.Config, action watchdog.FatalAction, meta WatchdogConfigMeta, logger *slog.Logger) (*watchdog.Watchdog, error) {
	w, err := watchdog.Attach(cfg, watchdog.Options{
		Clock:  clock.New(),
		Fatal:  action,
		Logger: logger.With("config_source", meta.Source),
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

func newClosePolicy(cfg watchdog.Config) (control.ClosePolicy, error) {
	return control.ParseClosePolicy(cfg.ClosePolicy)
}

func newHandler(w *watchdog.Watchdog, policy control.ClosePolicy, logger *slog.Logger) *control.Handler {
	return control.NewHandler(w, policy, logger)
}

func newDeviceServer(cfg watchdog.Config, handler *control.Handler, logger *slog.Logger) *device.Server {
	return device.NewServer(cfg.SocketPath, handler, logger)
}
