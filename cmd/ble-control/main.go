package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/shlex"
	"golang.org/x/term"

	"github.com/periph-ble/ble-command/pkg/cli"
	"github.com/periph-ble/ble-command/pkg/peripheral"
	"github.com/periph-ble/ble-command/pkg/protocol"
)

func writeErr(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, format, a...)
	fmt.Fprintf(os.Stderr, "\n")
}

const usage = `
 * Without a COMMAND, commands are read from standard input.
 * The sim backend needs no hardware and is the default.
 * The bring-up command requires a profile.`

func Usage() {
	fmt.Printf("Usage: %s [OPTION...] COMMAND [ARG...]\n", os.Args[0])
	fmt.Printf("\nRun %s help COMMAND for more information. Valid COMMANDs are listed below.", os.Args[0])
	fmt.Println("")
	fmt.Println(usage)
	fmt.Println("")

	fmt.Printf("Available OPTIONs:\n")
	flag.PrintDefaults()
	fmt.Println("")
	fmt.Printf("Available COMMANDs:\n")
	maxLength := 0
	var labels []string
	for command := range commands {
		labels = append(labels, command)
		if len(command) > maxLength {
			maxLength = len(command)
		}
	}
	sort.Strings(labels)
	for _, command := range labels {
		info := commands[command]
		fmt.Printf("  %s%s %s\n", command, strings.Repeat(" ", maxLength-len(command)), info.help)
	}
}

func runCommand(periph *peripheral.Peripheral, config *cli.Config, args []string, timeout time.Duration) int {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := execute(ctx, periph, config, args); err != nil {
		if protocol.MayHaveSucceeded(err) {
			writeErr("Couldn't verify success: %s", err)
		} else if errors.Is(err, protocol.ErrSlotBusy) {
			writeErr("A previous command of the same kind is still outstanding; try again shortly")
		} else {
			writeErr("Failed to execute command: %s", err)
		}
		return 1
	}
	return 0
}

func runInteractiveShell(periph *peripheral.Peripheral, config *cli.Config, timeout time.Duration) int {
	prompt := func() {}
	if term.IsTerminal(int(os.Stdin.Fd())) {
		prompt = func() { fmt.Printf("> ") }
	}
	scanner := bufio.NewScanner(os.Stdin)
	for prompt(); scanner.Scan(); prompt() {
		args, err := shlex.Split(scanner.Text())
		if len(args) == 0 {
			continue
		}
		if args[0] == "exit" {
			return 0
		}
		if err != nil {
			writeErr("Invalid command: %s", err)
			continue
		}
		if args[0] == "help" {
			if len(args) > 1 {
				if info, ok := commands[args[1]]; ok {
					info.Usage(args[1])
					continue
				}
			}
			Usage()
			continue
		}
		runCommand(periph, config, args, timeout)
	}
	if err := scanner.Err(); err != nil {
		writeErr("Error reading command: %s", err)
		return 1
	}
	return 0
}

func main() {
	status := 1
	defer func() {
		os.Exit(status)
	}()

	var timeout time.Duration
	config, err := cli.NewConfig(cli.FlagAll)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %s\n", err)
		os.Exit(1)
	}
	flag.Usage = Usage
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "Set overall timeout for each COMMAND.")

	config.RegisterCommandLineFlags()
	flag.Parse()
	config.ReadFromEnvironment()

	args := flag.Args()
	if len(args) > 0 {
		if args[0] == "help" {
			if len(args) == 1 {
				Usage()
				status = 0
				return
			}
			info, ok := commands[args[1]]
			if !ok {
				writeErr("Unrecognized command: %s", args[1])
				return
			}
			info.Usage(args[1])
			status = 0
			return
		}
		if _, ok := commands[args[0]]; !ok {
			writeErr("Unrecognized command: %s", args[0])
			return
		}
	}

	periph, err := config.Open()
	if err != nil {
		writeErr("Error: %s", err)
		// Error isn't wrapped so we have to check for a substring explicitly.
		if strings.Contains(err.Error(), "operation not permitted") {
			writeErr("\nTry again after granting this application CAP_NET_ADMIN:\n\n\tsudo setcap 'cap_net_admin=eip' \"$(which %s)\"\n", os.Args[0])
		}
		return
	}
	defer periph.Close()

	if flag.NArg() > 0 {
		status = runCommand(periph, config, flag.Args(), timeout)
	} else {
		status = runInteractiveShell(periph, config, timeout)
	}
}
