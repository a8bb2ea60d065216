// Command sealtool готовит секреты для конфигурации crossarb:
// ключ ENCRYPTION_KEY, зашифрованные ключи площадок ("enc:...")
// и bcrypt hash токена статус API (API_TOKEN_HASH).
//
//	sealtool keygen
//	ENCRYPTION_KEY=... sealtool seal <value>
//	sealtool hash-token [-cost 12] <token>
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"

	"crossarb/pkg/crypto"
)

func main() {
	if err := run(os.Args[1:], os.Getenv("ENCRYPTION_KEY"), os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "sealtool: %v\n", err)
		os.Exit(2)
	}
}

func run(args []string, key string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("usage: sealtool keygen | seal <value> | hash-token [-cost N] <token>")
	}

	switch args[0] {
	case "keygen":
		k, err := crypto.GenerateKey()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, k)
		return nil

	case "seal":
		if len(args) != 2 {
			return errors.New("usage: sealtool seal <value>")
		}
		if key == "" {
			return errors.New("ENCRYPTION_KEY is not set")
		}
		sealed, err := crypto.Seal(args[1], key)
		if err != nil {
			return errors.Wrap(err, "seal")
		}
		fmt.Fprintln(out, sealed)
		return nil

	case "hash-token":
		fs := flag.NewFlagSet("hash-token", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		cost := fs.Int("cost", crypto.DefaultCost, "bcrypt cost")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if fs.NArg() != 1 {
			return errors.New("usage: sealtool hash-token [-cost N] <token>")
		}
		hash, err := crypto.HashToken(fs.Arg(0), *cost)
		if err != nil {
			return errors.Wrap(err, "hash token")
		}
		fmt.Fprintln(out, hash)
		return nil

	default:
		return errors.Errorf("unknown command %q", args[0])
	}
}
