package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"

	"walrus/internal/logger"
	"walrus/internal/types"
)

func parseBlobID(s string) (types.BlobID, error) {
	var id types.BlobID
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 32 {
		return id, fmt.Errorf("invalid blob id %q: want 64 hex characters", s)
	}
	copy(id[:], b)
	return id, nil
}

func parseObjectID(s string) ([32]byte, error) {
	var id [32]byte
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 32 {
		return id, fmt.Errorf("invalid object id %q: want 64 hex characters", s)
	}
	copy(id[:], b)
	return id, nil
}

func runRead(args []string) error {
	fs := flag.NewFlagSet("read", flag.ExitOnError)
	cf := bindCommonFlags(fs)
	blobHex := fs.String("blob", "", "blob id, hex-encoded")
	out := fs.String("out", "-", "output file path, or - for stdout")
	fs.Parse(args)

	blobID, err := parseBlobID(*blobHex)
	if err != nil {
		return err
	}

	c, err := cf.newClient()
	if err != nil {
		return err
	}
	data, err := c.ReadBlob(context.Background(), blobID)
	if err != nil {
		return fmt.Errorf("read blob:\n%w", err)
	}

	if *out == "-" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(*out, data, 0644)
}

func runWrite(args []string) error {
	fs := flag.NewFlagSet("write", flag.ExitOnError)
	cf := bindCommonFlags(fs)
	in := fs.String("in", "-", "input file path, or - for stdin")
	epochs := fs.Uint("epochs", 1, "number of epochs to store for")
	deletable := fs.Bool("deletable", false, "register as a deletable blob")
	fs.Parse(args)

	var data []byte
	var err error
	if *in == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(*in)
	}
	if err != nil {
		return fmt.Errorf("read input:\n%w", err)
	}

	c, err := cf.newClient()
	if err != nil {
		return err
	}
	blobID, objectID, err := c.WriteBlob(context.Background(), data, uint32(*epochs), *deletable)
	if err != nil {
		return fmt.Errorf("write blob:\n%w", err)
	}

	logger.Info("blob certified", "blobId", hex.EncodeToString(blobID[:]), "objectId", hex.EncodeToString(objectID[:]))
	return nil
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	cf := bindCommonFlags(fs)
	blobHex := fs.String("blob", "", "blob id, hex-encoded")
	fs.Parse(args)

	blobID, err := parseBlobID(*blobHex)
	if err != nil {
		return err
	}

	c, err := cf.newClient()
	if err != nil {
		return err
	}
	status, err := c.GetBlobStatus(context.Background(), blobID)
	if err != nil {
		return fmt.Errorf("get status:\n%w", err)
	}

	fmt.Printf("lifecycle=%d\n", status.Lifecycle)
	if status.InitialCertifiedEpoch != nil {
		fmt.Printf("initialCertifiedEpoch=%d\n", *status.InitialCertifiedEpoch)
	}
	if status.ObjectID != nil {
		fmt.Printf("objectId=%s\n", hex.EncodeToString(status.ObjectID[:]))
	}
	return nil
}

func runCost(args []string) error {
	fs := flag.NewFlagSet("cost", flag.ExitOnError)
	cf := bindCommonFlags(fs)
	size := fs.Uint64("size", 0, "unencoded blob size in bytes")
	epochs := fs.Uint("epochs", 1, "number of epochs to store for")
	fs.Parse(args)

	c, err := cf.newClient()
	if err != nil {
		return err
	}
	cost, err := c.StorageCost(context.Background(), *size, uint32(*epochs))
	if err != nil {
		return fmt.Errorf("compute cost:\n%w", err)
	}

	fmt.Printf("storageCost=%d writeCost=%d totalCost=%d\n", cost.StorageCost, cost.WriteCost, cost.TotalCost)
	return nil
}

func runDelete(args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	cf := bindCommonFlags(fs)
	objectHex := fs.String("object", "", "blob object id, hex-encoded")
	fs.Parse(args)

	objectID, err := parseObjectID(*objectHex)
	if err != nil {
		return err
	}

	c, err := cf.newClient()
	if err != nil {
		return err
	}
	if err := c.DeleteBlob(context.Background(), objectID); err != nil {
		return fmt.Errorf("delete blob:\n%w", err)
	}

	logger.Info("blob deleted", "objectId", hex.EncodeToString(objectID[:]))
	return nil
}

func runExtend(args []string) error {
	fs := flag.NewFlagSet("extend", flag.ExitOnError)
	cf := bindCommonFlags(fs)
	objectHex := fs.String("object", "", "blob object id, hex-encoded")
	currentEpoch := fs.Uint64("current-expiry", 0, "blob's current expiry epoch")
	targetEpoch := fs.Uint64("target-expiry", 0, "desired expiry epoch")
	fs.Parse(args)

	objectID, err := parseObjectID(*objectHex)
	if err != nil {
		return err
	}

	c, err := cf.newClient()
	if err != nil {
		return err
	}
	submitted, err := c.ExtendBlob(context.Background(), objectID, *currentEpoch, *targetEpoch)
	if err != nil {
		return fmt.Errorf("extend blob:\n%w", err)
	}

	if !submitted {
		logger.Info("extend is a no-op: target expiry is not after current expiry")
		return nil
	}

	logger.Info("blob extended", "objectId", hex.EncodeToString(objectID[:]), "targetExpiry", *targetEpoch)
	return nil
}
