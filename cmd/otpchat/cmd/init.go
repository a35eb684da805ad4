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

	"github.com/nomasters/onetimepad"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	initParty string
	initPad   string
)

// initCmd binds this device to a party of an imported pad
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Select the party and pad this device talks as",
	RunE: func(cmd *cobra.Command, args []string) error {
		storage, err := openStorage()
		if err != nil {
			return err
		}
		defer storage.Close()
		pad, err := onetimepad.LoadPad(storage, initPad)
		if err != nil {
			return err
		}
		if !pad.IsAssociatedParty(initParty) {
			return fmt.Errorf("%w: %v is not one of %v", onetimepad.ErrInvalidParty, initParty, pad.Parties())
		}
		path := viper.ConfigFileUsed()
		if path == "" {
			path = configFileName
		}
		config := Config{
			Party:   initParty,
			Pad:     initPad,
			Storage: viper.GetString("storage"),
		}
		if err := config.Save(path); err != nil {
			return err
		}
		fmt.Printf("configured %v on pad %v in %v\n", initParty, initPad, path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().StringVar(&initParty, "party", "", "name@machine party of this device")
	initCmd.Flags().StringVar(&initPad, "pad", "", "hash of an imported pad")
	initCmd.MarkFlagRequired("party")
	initCmd.MarkFlagRequired("pad")
}
