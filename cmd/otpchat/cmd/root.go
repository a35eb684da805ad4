// Copyright © 2019 NAME HERE <EMAIL ADDRESS>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"fmt"
	"io/ioutil"
	"os"

	"github.com/fatih/color"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/nomasters/onetimepad"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	yaml "gopkg.in/yaml.v2"
)

const configFileName = "otpchat.yaml"

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "otpchat",
	Short: "One time pad encrypted conversations",
	Long: `otpchat encrypts conversations with a one time pad shared by all parties.
To get started, generate a pad, hand a copy to every party and run:

	otpchat import otp-XXX.json
	otpchat init --party alice@luna --pad <hash>
	`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./otpchat.yaml)")
	rootCmd.PersistentFlags().String("storage", "~/.otpchat.boltdb", "path of the bolt database holding pads and conversations")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log debug output to stderr")
	viper.BindPFlag("storage", rootCmd.PersistentFlags().Lookup("storage"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("otpchat")
	}

	viper.SetEnvPrefix("otpchat")
	viper.AutomaticEnv() // read in environment variables that match

	// a missing config file is fine until a command needs party or pad
	viper.ReadInConfig()
}

// Config is used to save the party and pad a conversation runs with
type Config struct {
	Party   string `yaml:"party"`
	Pad     string `yaml:"pad"`
	Storage string `yaml:"storage"`
}

// Save saves a config to disk as a yaml file in the existing directory
func (c Config) Save(path string) error {
	d, err := yaml.Marshal(&c)
	if err != nil {
		return err
	}
	return ioutil.WriteFile(path, d, 0644)
}

func newLogger() *zap.Logger {
	var (
		log *zap.Logger
		err error
	)
	if viper.GetBool("verbose") {
		log, err = zap.NewDevelopment()
	} else {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
		cfg.OutputPaths = []string{"stderr"}
		log, err = cfg.Build()
	}
	if err != nil {
		return zap.NewNop()
	}
	return log
}

func storagePath() (string, error) {
	return homedir.Expand(viper.GetString("storage"))
}

func openStorage() (onetimepad.Storage, error) {
	path, err := storagePath()
	if err != nil {
		return nil, err
	}
	return onetimepad.NewStorage(onetimepad.StorageOptions{FilePath: path})
}

func openSession(log *zap.Logger) (*onetimepad.Session, error) {
	party := viper.GetString("party")
	pad := viper.GetString("pad")
	if party == "" || pad == "" {
		return nil, fmt.Errorf("party and pad must be configured, run otpchat init first")
	}
	path, err := storagePath()
	if err != nil {
		return nil, err
	}
	return onetimepad.NewSession(pad, party, onetimepad.SessionOptions{
		StorageFilePath: path,
		Logger:          log,
	})
}

func logPrinter(messages []onetimepad.PlainMessage, party string) {
	for _, m := range messages {
		line := fmt.Sprintf("(%v) %v: %s", m.Creation(), m.Party(), m.Payload())
		if m.Party() == party {
			color.Green("%s", line)
		} else {
			color.Yellow("%s", line)
		}
	}
}
