/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/jerry-enebeli/tally"
	"github.com/jerry-enebeli/tally/config"
	"github.com/jerry-enebeli/tally/database"
	"github.com/jerry-enebeli/tally/internal/notification"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Tally is the command line entry point.
type Tally struct {
	cmd *cobra.Command
}

// tallyInstance is the engine and configuration shared by every subcommand.
type tallyInstance struct {
	tally      *tally.Tally
	datasource database.IDataSource
	cnf        *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration file named by --config and builds the
// engine before any subcommand runs.
func preRun(app *tallyInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := config.InitConfig(*configFile); err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		db, newTally, err := setupTally(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.tally = newTally
		app.datasource = db
		app.cnf = cnf
		return nil
	}
}

func setupTally(cfg *config.Configuration) (database.IDataSource, *tally.Tally, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("error getting datasource: %v", err)
	}

	newTally, err := tally.NewTally(db)
	if err != nil {
		return nil, nil, fmt.Errorf("error creating tally: %v", err)
	}
	return db, newTally, nil
}

// NewCLI wires the start, workers and migrate subcommands under the root command.
func NewCLI() *Tally {
	var configFile string
	t := &tallyInstance{}

	rootCmd := &cobra.Command{
		Use:   "tally",
		Short: "Voucher upload reconciliation",
		Run:   func(cmd *cobra.Command, args []string) {},
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./tally.json", "Configuration file for tally")
	rootCmd.PersistentPreRunE = preRun(t, &configFile)

	rootCmd.AddCommand(serverCommands(t))
	rootCmd.AddCommand(workerCommands(t))
	rootCmd.AddCommand(migrateCommands(t))

	return &Tally{cmd: rootCmd}
}

func (w Tally) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
