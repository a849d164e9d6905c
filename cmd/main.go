/*
Copyright 2025 CampusPay Authors.

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

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/campuspay/campuspay"
	"github.com/campuspay/campuspay/config"
	"github.com/campuspay/campuspay/database"
	"github.com/campuspay/campuspay/internal/notification"
)

// CampusPayCLI represents the CLI application, encapsulating the root Cobra command.
type CampusPayCLI struct {
	cmd *cobra.Command
}

// campuspayInstance holds the service instance and its configuration, shared
// across subcommands.
type campuspayInstance struct {
	service *campuspay.CampusPay
	cnf     *config.Configuration
}

// recoverPanic handles any panics during program execution and logs the error.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads configuration and initializes the service before any command.
func preRun(app *campuspayInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig("campuspay.json")
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		newService, err := setupService(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.service = newService
		app.cnf = cnf

		return nil
	}
}

// setupService connects the datasource and builds the service instance.
func setupService(cfg *config.Configuration) (*campuspay.CampusPay, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	newService, err := campuspay.NewCampusPay(db)
	if err != nil {
		return nil, fmt.Errorf("error creating campuspay service: %v", err)
	}
	return newService, nil
}

// NewCLI creates the command-line interface for the CampusPay application.
func NewCLI() *CampusPayCLI {
	var configFile string
	b := &campuspayInstance{}

	var rootCmd = &cobra.Command{
		Use:   "campuspay",
		Short: "School payments lifecycle core",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./campuspay.json", "Configuration file for campuspay")
	rootCmd.PersistentPreRunE = preRun(b)

	rootCmd.AddCommand(serverCommands(b))
	rootCmd.AddCommand(workerCommands(b))
	rootCmd.AddCommand(migrateCommands(b))

	return &CampusPayCLI{cmd: rootCmd}
}

func (w CampusPayCLI) executeCLI() {
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
