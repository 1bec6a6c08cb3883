package main

import (
	"fmt"
	"os"

	"walrus/internal/logger"
)

func main() {
	logger.Init()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "read":
		err = runRead(os.Args[2:])
	case "write":
		err = runWrite(os.Args[2:])
	case "status":
		err = runStatus(os.Args[2:])
	case "cost":
		err = runCost(os.Args[2:])
	case "delete":
		err = runDelete(os.Args[2:])
	case "extend":
		err = runExtend(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: walrus <read|write|status|cost|delete|extend> [flags]")
}
