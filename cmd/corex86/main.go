/*
corex86 - Main process.

Copyright 2026, corex86 contributors

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/

package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	getopt "github.com/pborman/getopt/v2"

	config "github.com/rh1tech/corex86/config/configparser"
	machineconfig "github.com/rh1tech/corex86/config/machineconfig"
	"github.com/rh1tech/corex86/core"
	"github.com/rh1tech/corex86/monitor"
	logger "github.com/rh1tech/corex86/util/logger"

	_ "github.com/rh1tech/corex86/config/debugconfig"
)

const defaultMemSize = 16 * 1024 * 1024

func main() {
	optConfig := getopt.StringLong("config", 'c', "corex86.cfg", "Configuration file")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optMonitor := getopt.BoolLong("monitor", 'm', "Start interactive monitor console on stdin")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	var file *os.File
	if optLogFile != nil && *optLogFile != "" {
		file, _ = os.Create(*optLogFile)
	}
	programLevel := new(slog.LevelVar)
	programLevel.Set(slog.LevelDebug)
	debugOn := true
	logHandler := logger.NewHandler(file, &slog.HandlerOptions{Level: programLevel, AddSource: false}, &debugOn)
	logr := slog.New(logHandler)
	slog.SetDefault(logr)

	logr.Info("corex86 started")

	if optConfig != nil && *optConfig != "" {
		if _, err := os.Stat(*optConfig); err == nil {
			if err := config.LoadConfigFile(*optConfig); err != nil {
				logr.Error(err.Error())
				os.Exit(1)
			}
		} else {
			logr.Warn("configuration file not found, using defaults", slog.String("path", *optConfig))
		}
	}

	mc := machineconfig.Current()
	memSize := mc.MemSize
	if memSize == 0 {
		memSize = defaultMemSize
	}

	machine := core.New(core.Config{MemSize: memSize, FPU: mc.FPU}, nil)

	if mc.BIOS != "" {
		if err := loadBlob(machine, mc.BIOS, 0x100000-0x10000); err != nil {
			logr.Error("unable to load BIOS", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}
	if mc.Kernel != "" && mc.LinuxStart != 0 {
		if err := loadBlob(machine, mc.Kernel, mc.LinuxStart); err != nil {
			logr.Error("unable to load kernel", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	machine.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if optMonitor != nil && *optMonitor {
		go func() {
			monitor.Console(machine)
			sigChan <- syscall.SIGTERM
		}()
	}

	<-sigChan
	fmt.Println("Got quit signal")

	logr.Info("shutting down machine")
	machine.Stop()
	logr.Info("machine stopped")
}

// loadBlob reads path and stores it into physical memory starting at addr,
// the same "slurp a file into a fixed physical offset" pattern the teacher
// uses for card-image preload, generalized to arbitrary blobs (BIOS images,
// kernels) instead of 80-column card decks.
func loadBlob(m *core.Machine, path string, addr uint32) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	m.Mem.StoreBytes(addr, data)
	return nil
}
