package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/pflag"

	"smart-watchdog/internal/bootstatus"
	"smart-watchdog/internal/control"
	watchdog "smart-watchdog/internal/core"
	"smart-watchdog/internal/device"
)

// usageError 는 종료 코드 2 로 끝난다.
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		var usage *usageError
		if errors.As(err, &usage) {
			fmt.Fprintf(os.Stderr, "wdctl: %v\n", err)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "wdctl: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer, errOut io.Writer) error {
	var (
		devicePath string
		magicClose bool
		timeout    time.Duration
	)

	flagSet := pflag.NewFlagSet("wdctl", pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVarP(&devicePath, "device", "d", watchdog.DefaultSocketPath, "watchdog control socket")
	flagSet.BoolVar(&magicClose, "magic-close", true, "write 'V' before closing so the watchdog is stopped on close")
	flagSet.DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(out, flagSet)
			return nil
		}
		return &usageError{msg: err.Error()}
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(out, flagSet)
		return nil
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		printHelp(out, flagSet)
		return &usageError{msg: "command is required"}
	}
	name, cmdArgs := rest[0], rest[1:]

	cmd, ok := commands[name]
	if !ok {
		return &usageError{msg: fmt.Sprintf("unknown command %q", name)}
	}
	if len(cmdArgs) != cmd.args {
		return &usageError{msg: fmt.Sprintf("%s takes %d argument(s)", name, cmd.args)}
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client, err := device.Dial(ctx, devicePath)
	if err != nil {
		return err
	}

	// 장치를 열면 타이머가 시작된다. nowayout 에서는 닫아도 멈추지 않는다.
	if info, err := client.Support(ctx); err == nil && info.ClosePolicy == control.CloseNoWayOut.String() {
		fmt.Fprintf(errOut, "wdctl: warning: close policy is nowayout; the watchdog stays armed after this command and trips unless something pings it\n")
	}

	runErr := cmd.run(ctx, client, cmdArgs, out)

	if magicClose {
		if _, err := client.Write(ctx, []byte("V")); err != nil && runErr == nil && !errors.Is(err, watchdog.ErrTripped) {
			runErr = fmt.Errorf("magic close: %w", err)
		}
	}
	if err := client.Close(); err != nil && runErr == nil && !errors.Is(err, watchdog.ErrTripped) {
		runErr = err
	}
	return runErr
}

type command struct {
	args  int
	usage string
	run   func(ctx context.Context, client *device.Client, args []string, out io.Writer) error
}

var commands = map[string]command{
	"get-timeout": {
		usage: "print the timeout in seconds",
		run: func(ctx context.Context, client *device.Client, _ []string, out io.Writer) error {
			value, err := client.GetTimeout(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(out, value)
			return err
		},
	},
	"set-timeout": {
		args:  1,
		usage: "set the timeout in seconds and print the value in effect",
		run: func(ctx context.Context, client *device.Client, args []string, out io.Writer) error {
			value, err := strconv.Atoi(args[0])
			if err != nil {
				return &usageError{msg: fmt.Sprintf("invalid timeout %q", args[0])}
			}
			current, err := client.SetTimeout(ctx, value)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(out, current)
			return err
		},
	},
	"keepalive": {
		usage: "send one keepalive",
		run: func(ctx context.Context, client *device.Client, _ []string, _ io.Writer) error {
			return client.KeepAlive(ctx)
		},
	},
	"time-left": {
		usage: "print the seconds until expiry",
		run: func(ctx context.Context, client *device.Client, _ []string, out io.Writer) error {
			value, err := client.TimeLeft(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(out, value)
			return err
		},
	},
	"info": {
		usage: "print the identity and supported options as JSON",
		run: func(ctx context.Context, client *device.Client, _ []string, out io.Writer) error {
			info, err := client.Support(ctx)
			if err != nil {
				return err
			}
			return writeJSON(out, info)
		},
	},
	"bootstatus": {
		usage: "print whether the last reset was caused by the watchdog",
		run: func(ctx context.Context, client *device.Client, _ []string, out io.Writer) error {
			flags, record, err := client.BootStatus(ctx)
			if err != nil {
				return err
			}
			return writeJSON(out, struct {
				Flags     uint32             `json:"flags"`
				CardReset bool               `json:"cardReset"`
				LastTrip  *bootstatus.Record `json:"lastTrip,omitempty"`
			}{
				Flags:     flags,
				CardReset: flags&control.OptionCardReset != 0,
				LastTrip:  record,
			})
		},
	},
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printHelp(out io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(out, "Usage: wdctl [flags] <command> [args]\n\nCommands:\n")
	for _, name := range []string{"get-timeout", "set-timeout", "keepalive", "time-left", "info", "bootstatus"} {
		fmt.Fprintf(out, "  %-12s %s\n", name, commands[name].usage)
	}
	fmt.Fprintf(out, "\nFlags:\n%s", flagSet.FlagUsages())
	fmt.Fprintf(out, "\nEvery command opens the device, which starts the watchdog. With --magic-close the\n"+
		"close stops it again unless the host runs with close policy nowayout, in which case\n"+
		"the watchdog stays armed and trips unless something pings it.\n")
}
