package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/shlex"

	"slmtrig/config"
	"slmtrig/host/device"
	"slmtrig/host/serial"
	"slmtrig/sim"
	"slmtrig/telemetry"
)

var (
	devicePath = flag.String("device", "", "Serial device path (overrides config)")
	baud       = flag.Int("baud", 0, "Baud rate (ignored for USB CDC)")
	configPath = flag.String("config", "", "YAML settings file")
	simulate   = flag.Bool("sim", false, "Run against an in-process simulated controller")
	verbose    = flag.Bool("verbose", false, "Enable verbose output")
)

var logger = log.New(os.Stderr, "slmtrig-host ", log.Ldate|log.Ltime|log.Lmsgprefix)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	fmt.Println("slmtrig host - trigger controller console")
	fmt.Println("=========================================")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dev, err := connect(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer dev.Close()
	fmt.Println("Connected successfully!")

	sinks, err := dialTelemetry(cfg.Telemetry)
	if err != nil {
		logger.Printf("telemetry disabled: %v", err)
	}
	if len(sinks) > 0 {
		defer sinks.Close()
		go telemetry.Run(ctx, dev, sinks, cfg.Telemetry.Interval(), logger)
	}

	dev.PrintCommands()
	fmt.Println("Enter commands (type 'help' for available commands, 'quit' to exit):")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		parts, err := shlex.Split(strings.TrimSpace(scanner.Text()))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		if len(parts) == 0 {
			continue
		}

		switch cmd := parts[0]; cmd {
		case "quit", "exit", "q":
			fmt.Println("Goodbye!")
			return

		case "help", "?":
			printHelp()
			dev.PrintCommands()

		case "latest":
			st, ok := dev.Latest()
			if !ok {
				fmt.Println("No status received yet")
				continue
			}
			device.PrintStatus(st)

		case "wait":
			timeout := time.Duration(0)
			if len(parts) > 1 {
				if timeout, err = time.ParseDuration(parts[1]); err != nil {
					fmt.Fprintf(os.Stderr, "Error: %v\n", err)
					continue
				}
			}
			fmt.Println("Waiting for capture to finish...")
			st, err := dev.WaitCompletion(timeout)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				continue
			}
			fmt.Println("****Capture Finished****")
			device.PrintStatus(st)

		default:
			st, err := dev.Run(cmd, parts[1:])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				continue
			}
			if *verbose || cmd == "status" {
				device.PrintStatus(st)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return nil, err
		}
	}
	if *devicePath != "" {
		cfg.Serial.Device = *devicePath
	}
	if *baud != 0 {
		cfg.Serial.Baud = *baud
	}
	if *simulate {
		cfg.Sim.Enabled = true
	}
	if !cfg.Sim.Enabled && cfg.Serial.Device == "" {
		cfg.Serial.Device = "/dev/ttyACM0"
	}
	return cfg, config.Validate(cfg)
}

// connect opens the serial device, or starts a simulated controller wired
// to the host through an in-memory port
func connect(ctx context.Context, cfg *config.Config) (*device.Device, error) {
	if !cfg.Sim.Enabled {
		fmt.Printf("Connecting to controller on %s...\n", cfg.Serial.Device)
		return device.ConnectWithConfig(&cfg.Serial)
	}

	profile, err := cfg.ResolveProfile()
	if err != nil {
		return nil, err
	}
	d, err := sim.New(profile)
	if err != nil {
		return nil, err
	}
	fmt.Printf("Starting simulated %s controller...\n", profile.Name)

	host, port := serial.Loopback()
	go func() {
		err := d.Serve(ctx, port, d.BinaryTransport(port), cfg.Sim.PollInterval())
		if err != nil && err != context.Canceled && *verbose {
			logger.Printf("sim: %v", err)
		}
		port.Close()
	}()
	return device.New(host), nil
}

func dialTelemetry(cfg config.TelemetryConfig) (telemetry.Multi, error) {
	var sinks telemetry.Multi
	if cfg.MQTT != nil {
		s, err := telemetry.DialMQTT(*cfg.MQTT)
		if err != nil {
			return sinks, err
		}
		logger.Printf("publishing status to %s topic %s", cfg.MQTT.Broker, cfg.MQTT.Topic)
		sinks = append(sinks, s)
	}
	if cfg.Modbus != nil {
		s, err := telemetry.DialModbus(*cfg.Modbus)
		if err != nil {
			return sinks, err
		}
		logger.Printf("mirroring status to %s unit %d", cfg.Modbus.Endpoint, cfg.Modbus.UnitID)
		sinks = append(sinks, s)
	}
	return sinks, nil
}

func printHelp() {
	fmt.Println("\nAvailable commands:")
	fmt.Println("  help           - Show this help message")
	fmt.Println("  latest         - Print the last status record without querying")
	fmt.Println("  wait [dur]     - Block until a Z-stack or timed capture finishes")
	fmt.Println("  quit/exit/q    - Exit the program")
	fmt.Println()
}
