package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"regexp"

	"golang.org/x/term"

	"github.com/dbctx/dbctx"
)

func runDoctor() error {
	fs := flag.NewFlagSet("doctor", flag.ExitOnError)
	configPath := fs.String("config", ".dbctx/config.json", "Path to configuration file")
	fs.Parse(os.Args[2:])

	useColor := term.IsTerminal(int(os.Stderr.Fd()))
	return doctor(os.Stderr, useColor, *configPath)
}

func doctor(w io.Writer, useColor bool, configPath string) error {
	if !doctorValidateConfig(w, useColor, configPath) {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Fix the issues above and run 'dbctx doctor' again.")
	}
	return nil
}

// doctorValidateConfig loads and validates the config file, printing check
// results. Returns true if all checks passed.
func doctorValidateConfig(w io.Writer, useColor bool, configPath string) bool {
	allPassed := true

	data, err := os.ReadFile(configPath)
	if err != nil {
		printCheck(w, useColor, false, fmt.Sprintf("Config file readable (%s)", configPath))
		return false
	}
	printCheck(w, useColor, true, fmt.Sprintf("Config file readable (%s)", configPath))

	var config dbctx.ServerConfig
	if err := json.Unmarshal(data, &config); err != nil {
		printCheck(w, useColor, false, fmt.Sprintf("Config file is valid JSON: %v", err))
		return false
	}
	printCheck(w, useColor, true, "Config file is valid JSON")

	if config.Connection.DBName == "" {
		printCheck(w, useColor, false, "connection.dbname is set")
		allPassed = false
	} else {
		printCheck(w, useColor, true, fmt.Sprintf("connection.dbname is set (%s)", config.Connection.DBName))
	}

	if config.Server.Port <= 0 {
		printCheck(w, useColor, false, "server.port is > 0")
		allPassed = false
	} else {
		printCheck(w, useColor, true, fmt.Sprintf("server.port is > 0 (%d)", config.Server.Port))
	}

	if config.Server.HealthCheckEnabled {
		if config.Server.HealthCheckPath == "" {
			printCheck(w, useColor, false, "health_check_path is set (required when health_check_enabled)")
			allPassed = false
		} else {
			printCheck(w, useColor, true, fmt.Sprintf("health_check_path is set (%s)", config.Server.HealthCheckPath))
		}
	}

	regexOK := true
	for i, rule := range config.ErrorPrompts {
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			printCheck(w, useColor, false, fmt.Sprintf("error_prompts[%d] regex compiles: %v", i, err))
			regexOK = false
			allPassed = false
		}
	}
	for i, rule := range config.Sanitization {
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			printCheck(w, useColor, false, fmt.Sprintf("sanitization[%d] regex compiles: %v", i, err))
			regexOK = false
			allPassed = false
		}
	}
	for i, rule := range config.Query.TimeoutRules {
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			printCheck(w, useColor, false, fmt.Sprintf("timeout_rules[%d] regex compiles: %v", i, err))
			regexOK = false
			allPassed = false
		}
	}
	if regexOK {
		printCheck(w, useColor, true, "All regex patterns compile")
	}

	return allPassed
}

// printCheck prints a colored ✓ or ✗ check line.
func printCheck(w io.Writer, useColor bool, pass bool, msg string) {
	mark, color := "✓", "\033[32m"
	if !pass {
		mark, color = "✗", "\033[31m"
	}
	if useColor {
		fmt.Fprintf(w, "  %s%s\033[0m %s\n", color, mark, msg)
	} else {
		fmt.Fprintf(w, "  %s %s\n", mark, msg)
	}
}
