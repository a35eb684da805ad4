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
	"bufio"
	"fmt"
	"io/ioutil"
	"os"
	"strings"

	"github.com/nomasters/onetimepad"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	sendPreview bool
	receiveFile string
)

// sendCmd encrypts a message as the configured party
var sendCmd = &cobra.Command{
	Use:   "send [MESSAGE...]",
	Short: "Encrypt a message and print it in the mail safe text form",
	Long: `Send encrypts the message given as arguments, or read from stdin, with the
next unused chunks of the configured party. Use --preview to look at the
ciphertext without using up any chunk.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		defer log.Sync()

		session, err := openSession(log)
		if err != nil {
			return err
		}
		defer session.Close()

		text := strings.Join(args, " ")
		if text == "" {
			reader := bufio.NewReader(os.Stdin)
			fmt.Fprint(os.Stderr, "Enter message: ")
			if text, err = reader.ReadString('\n'); err != nil && text == "" {
				return err
			}
			text = strings.TrimSpace(text)
		}
		author, machine, err := onetimepad.ParseParty(session.Conversation().Party())
		if err != nil {
			return err
		}
		message, err := onetimepad.NewPlainMessage(author, machine, []byte(text))
		if err != nil {
			return err
		}

		var encrypted *onetimepad.EncryptedMessage
		if sendPreview {
			encrypted, err = session.Conversation().EncryptedMessagePreview(message)
		} else {
			encrypted, err = session.Send(message)
		}
		if err != nil {
			return err
		}
		id, err := onetimepad.EnvelopeID(encrypted)
		if err != nil {
			return err
		}
		log.Debug("message sent", zap.String("envelope", id), zap.Bool("preview", sendPreview))
		fmt.Print(encrypted.SerializeToText())
		return nil
	},
}

// receiveCmd decrypts a message in text form and records it
var receiveCmd = &cobra.Command{
	Use:   "receive",
	Short: "Decrypt a message in text form from stdin or a file",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		defer log.Sync()

		var (
			input []byte
			err   error
		)
		if receiveFile != "" {
			input, err = ioutil.ReadFile(receiveFile)
		} else {
			input, err = ioutil.ReadAll(os.Stdin)
		}
		if err != nil {
			return err
		}

		session, err := openSession(log)
		if err != nil {
			return err
		}
		defer session.Close()

		message, err := session.ReceiveText(string(input))
		if err != nil {
			return err
		}
		logPrinter([]onetimepad.PlainMessage{message}, session.Conversation().Party())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(receiveCmd)

	sendCmd.Flags().BoolVar(&sendPreview, "preview", false, "show the ciphertext without recording the message")
	receiveCmd.Flags().StringVarP(&receiveFile, "file", "f", "", "read the message from a file instead of stdin")
}
