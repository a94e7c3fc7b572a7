package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/gotiktoken/gotiktoken"
)

func die(err error) { fmt.Fprintln(os.Stderr, err); os.Exit(1) }

func resolveEncoding(encodingName, model string) (*gotiktoken.Encoding, error) {
	if model != "" {
		return gotiktoken.EncodingForModel(model)
	}
	if encodingName == "" {
		encodingName = string(gotiktoken.Cl100kBase)
	}
	return gotiktoken.GetEncoding(gotiktoken.Name(encodingName))
}

func readStdin() (string, error) {
	b, err := io.ReadAll(bufio.NewReader(os.Stdin))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("gotiktoken [encode|decode|count] -encoding=... -model=...")
		return
	}

	switch os.Args[1] {
	case "encode":
		fs := flag.NewFlagSet("encode", flag.ExitOnError)
		encodingName := fs.String("encoding", "", "encoding name (default cl100k_base)")
		model := fs.String("model", "", "model name, resolved to an encoding")
		_ = fs.Parse(os.Args[2:])
		enc, err := resolveEncoding(*encodingName, *model)
		if err != nil {
			die(err)
		}
		text, err := readStdin()
		if err != nil {
			die(err)
		}
		toks, err := enc.EncodeWithAllSpecials(text)
		if err != nil {
			die(err)
		}
		_ = json.NewEncoder(os.Stdout).Encode(toks)

	case "decode":
		fs := flag.NewFlagSet("decode", flag.ExitOnError)
		encodingName := fs.String("encoding", "", "encoding name (default cl100k_base)")
		model := fs.String("model", "", "model name, resolved to an encoding")
		_ = fs.Parse(os.Args[2:])
		enc, err := resolveEncoding(*encodingName, *model)
		if err != nil {
			die(err)
		}
		var tokens []uint32
		if err := json.NewDecoder(os.Stdin).Decode(&tokens); err != nil {
			die(err)
		}
		text, err := enc.Decode(tokens)
		if err != nil {
			die(err)
		}
		fmt.Println(text)

	case "count":
		fs := flag.NewFlagSet("count", flag.ExitOnError)
		encodingName := fs.String("encoding", "", "encoding name (default cl100k_base)")
		model := fs.String("model", "", "model name, resolved to an encoding")
		_ = fs.Parse(os.Args[2:])
		enc, err := resolveEncoding(*encodingName, *model)
		if err != nil {
			die(err)
		}
		text, err := readStdin()
		if err != nil {
			die(err)
		}
		toks, err := enc.EncodeOrdinary(text)
		if err != nil {
			die(err)
		}
		fmt.Println(len(toks))

	default:
		fmt.Fprintln(os.Stderr, "unimplemented")
		os.Exit(2)
	}
}
