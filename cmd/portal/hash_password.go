package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/pitchingcoachu/portal/internal/password"
)

func hashPasswordCmd() *cli.Command {
	return &cli.Command{
		Name:  "hash-password",
		Usage: "Print a password hash for auth_users.password_hash (password is read from stdin)",
		Action: func(c *cli.Context) error {
			sc := bufio.NewScanner(os.Stdin)
			if !sc.Scan() {
				if err := sc.Err(); err != nil {
					return err
				}
				return errors.New("missing password from stdin")
			}
			pw := strings.TrimRight(sc.Text(), "\r")
			if pw == "" {
				return errors.New("missing password from stdin")
			}
			hash, err := password.NewHasher().Hash(pw)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, hash)
			return nil
		},
	}
}
