package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/helixml/scanout/api/pkg/drm"
)

func newLeaseCmd() *cobra.Command {
	leaseCmd := &cobra.Command{
		Use:   "lease",
		Short: "Talk to a DRM lease manager",
	}

	leaseCmd.AddCommand(&cobra.Command{
		Use:   "request [width height]",
		Short: "Request a lease and report what was granted",
		Args:  sizeArgs,
		RunE:  leaseRequest,
	})

	leaseCmd.AddCommand(&cobra.Command{
		Use:   "release <id>",
		Short: "Release a lease by id",
		Args:  cobra.ExactArgs(1),
		RunE:  leaseRelease,
	})

	return leaseCmd
}

func sizeArgs(_ *cobra.Command, args []string) error {
	if len(args) != 0 && len(args) != 2 {
		return errors.New("give both width and height, or neither")
	}
	return nil
}

func leaseClient(cmd *cobra.Command) (*drm.LeaseClient, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if cfg.Device.LeaseSocket == "" {
		return nil, errors.New("no lease manager socket, set --drm-socket or SCANOUT_DRM_SOCKET")
	}
	return drm.NewLeaseClient(cfg.Device.LeaseSocket), nil
}

func leaseRequest(cmd *cobra.Command, args []string) error {
	client, err := leaseClient(cmd)
	if err != nil {
		return err
	}

	width, height := uint64(1920), uint64(1080)
	if len(args) == 2 {
		if width, err = strconv.ParseUint(args[0], 10, 32); err != nil {
			return fmt.Errorf("invalid width: %w", err)
		}
		if height, err = strconv.ParseUint(args[1], 10, 32); err != nil {
			return fmt.Errorf("invalid height: %w", err)
		}
	}

	lease, err := client.RequestLease(uint32(width), uint32(height))
	if err != nil {
		return err
	}
	defer lease.Close()
	defer unix.Close(lease.FD)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "lease:     %d\n", lease.ID)
	fmt.Fprintf(out, "connector: %s\n", lease.ConnectorName)
	fmt.Fprintf(out, "fd:        %d\n", lease.FD)
	return nil
}

func leaseRelease(cmd *cobra.Command, args []string) error {
	client, err := leaseClient(cmd)
	if err != nil {
		return err
	}
	id, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid lease id: %w", err)
	}
	if err := client.ReleaseLease(uint32(id)); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "released lease %d\n", id)
	return nil
}
