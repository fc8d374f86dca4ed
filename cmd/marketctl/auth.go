package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func loginCmd(flags *rootFlags) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Sign in and persist the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := loadApp(cmd, flags)
			if err != nil {
				return err
			}
			defer cleanup()

			username := args[0]
			if password == "" {
				password, err = promptLine("Password: ")
				if err != nil {
					return err
				}
			}

			if err := app.Sessions.Login(cmd.Context(), username, password); err != nil {
				return err
			}

			fmt.Printf("Signed in as %s\n", username)
			return nil
		},
	}

	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (prompted when omitted)")
	return cmd
}

func logoutCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear the persisted session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := loadApp(cmd, flags)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := app.Sessions.Logout(); err != nil {
				return err
			}

			fmt.Println("Signed out")
			return nil
		},
	}
}

func registerCmd(flags *rootFlags) *cobra.Command {
	var (
		email    string
		password string
	)

	cmd := &cobra.Command{
		Use:   "register <username>",
		Short: "Create a new account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := loadApp(cmd, flags)
			if err != nil {
				return err
			}
			defer cleanup()

			if password == "" {
				password, err = promptLine("Password: ")
				if err != nil {
					return err
				}
			}

			if err := app.Sessions.Register(cmd.Context(), args[0], email, password); err != nil {
				return err
			}

			fmt.Println("Registration successful. You can now log in with 'marketctl login'.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Email address")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (prompted when omitted)")
	cmd.MarkFlagRequired("email")
	return cmd
}

func whoamiCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := loadApp(cmd, flags)
			if err != nil {
				return err
			}
			defer cleanup()

			if !app.Sessions.IsAuthenticated() {
				fmt.Println("Not signed in")
				return nil
			}

			fmt.Println(app.Sessions.Username())
			return nil
		},
	}
}

// promptLine reads one line from stdin after printing prompt.
func promptLine(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
