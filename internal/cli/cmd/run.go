package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/kitsune32/kitsune/internal/bus"
	"github.com/kitsune32/kitsune/internal/cli"
	"github.com/kitsune32/kitsune/internal/disk"
	"github.com/kitsune32/kitsune/internal/log"
	"github.com/kitsune32/kitsune/internal/tty"
	"github.com/kitsune32/kitsune/internal/vm"
)

// Runner returns the run command.
func Runner() cli.Command {
	return &runner{budget: 256}
}

type runner struct {
	logLevel slog.Level
	diskPath string
	budget   uint
}

var _ cli.Command = (*runner)(nil)

func (runner) Description() string {
	return "boot a machine from a ROM image"
}

func (runner) Usage(out io.Writer) error {
	_, err := fmt.Fprintln(out, `run [-disk disk0.img] rom.bin

Boots the machine with the given firmware ROM. When a disk image is
attached it backs both the paged guest RAM and the disk controller's
slot 0.`)

	return err
}

func (r *runner) FlagSet() *cli.FlagSet {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	fs.StringVar(&r.diskPath, "disk", "", "attach disk image `file` to slot 0")
	fs.UintVar(&r.budget, "budget", r.budget, "instructions per scheduling slice")
	fs.Func("loglevel", "set log `level`", func(s string) error {
		return r.logLevel.UnmarshalText([]byte(s))
	})

	return fs
}

func (r *runner) Run(ctx context.Context, args []string, out io.Writer, logger *log.Logger) int {
	log.LogLevel.Set(r.logLevel)

	if len(args) != 1 {
		logger.Error("run: expected a ROM image argument")
		return 1
	}

	rom, err := os.ReadFile(args[0])
	if err != nil {
		logger.Error("run: loading ROM", "ERR", err)
		return 1
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := []vm.OptionFn{
		vm.WithLogger(logger),
		vm.WithROM(rom),
	}

	controller := disk.NewController(logger)

	if r.diskPath != "" {
		if err := controller.Insert(0, r.diskPath); err != nil {
			logger.Error("run: attaching disk", "ERR", err)
			return 1
		}

		defer controller.Eject(0)

		opts = append(opts, vm.WithSwap(controller.Swap(0)))
	}

	machine := vm.New(opts...)

	var serial bus.Serial

	console, err := tty.NewConsole(ctx, os.Stdin)
	switch {
	case err == nil:
		defer console.Restore()
		serial = console
	case errors.Is(err, tty.ErrNoTTY):
		logger.Debug("run: no terminal; serial input disabled")
	default:
		logger.Error("run: console", "ERR", err)
		return 1
	}

	ports := bus.New(serial, controller, machine, logger)
	vm.WithPorts(ports.Read, ports.Write)(machine)

	logger.Info("machine starting", "ROM", args[0], "DISK", r.diskPath)

	if err := machine.Run(ctx, vm.Word(r.budget)); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(out, "fault: %v ip=%s operand=%s\n",
			err, machine.PC, machine.ExceptionOperand)

		return 2
	}

	return 0
}
