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

	"github.com/spf13/cobra"
)

// historyCmd prints the decrypted conversation
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the decrypted conversation",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		defer log.Sync()

		session, err := openSession(log)
		if err != nil {
			return err
		}
		defer session.Close()

		messages, err := session.History()
		if err != nil {
			return err
		}
		logPrinter(messages, session.Conversation().Party())
		return nil
	},
}

// exportCmd prints the encrypted history as JSON
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print the encrypted conversation history as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		defer log.Sync()

		session, err := openSession(log)
		if err != nil {
			return err
		}
		defer session.Close()

		b, err := session.Conversation().SerializeEncryptedMessagesToJSON()
		if err != nil {
			return err
		}
		fmt.Println(string(b))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(exportCmd)
}
