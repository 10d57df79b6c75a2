package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"portrpc/registry"
)

func newHostsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hosts",
		Short: "Manage native messaging host manifests",
	}
	cmd.AddCommand(newHostsListCmd(a))
	cmd.AddCommand(newHostsWatchCmd(a))
	cmd.AddCommand(newHostsInstallCmd(a))
	cmd.AddCommand(newHostsRemoveCmd(a))
	return cmd
}

func printHosts(w io.Writer, hosts []registry.HostManifest) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tWEIGHT\tALLOWED\tMANIFEST")
	for _, h := range hosts {
		allowed := append(append([]string(nil), h.AllowedExtensions...), h.AllowedOrigins...)
		manifest := h.ManifestPath
		if manifest == "" {
			manifest = "-"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", h.Path, h.Weight, strings.Join(allowed, ","), manifest)
	}
	tw.Flush()
}

func newHostsListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list NAME",
		Short: "List hosts registered for an application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, release, err := a.openRegistry()
			if err != nil {
				return err
			}
			defer release()

			hosts, err := reg.Discover(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(hosts) == 0 {
				return errors.Errorf("no hosts registered for %s", args[0])
			}
			printHosts(cmd.OutOrStdout(), hosts)
			return nil
		},
	}
}

func newHostsWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch NAME",
		Short: "Print the hosts of an application whenever they change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, release, err := a.openRegistry()
			if err != nil {
				return err
			}
			defer release()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return watchHosts(ctx, cmd.OutOrStdout(), reg, args[0])
		},
	}
}

func watchHosts(ctx context.Context, w io.Writer, reg registry.Registry, name string) error {
	for hosts := range reg.Watch(ctx, name) {
		fmt.Fprintf(w, "# %d host(s) for %s\n", len(hosts), name)
		printHosts(w, hosts)
	}
	return nil
}

type installFlags struct {
	Name              string
	Path              string
	Description       string
	AllowedExtensions []string
	AllowedOrigins    []string
	Weight            int
	TTL               int64
	Stdout            bool
}

func newHostsInstallCmd(a *app) *cobra.Command {
	var f installFlags
	cmd := &cobra.Command{
		Use:   "install --name NAME --path EXECUTABLE (--allowed-extension ID | --allowed-origin ORIGIN)",
		Short: "Register a host manifest",
		Long: `Register a host for an application. Firefox manifests list allowed
extension ids, Chrome manifests allowed origins; exactly one of the two
must be given. With --stdout the manifest is printed instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(f.Path)
			if err != nil {
				return errors.Wrap(err, "host path")
			}
			m := registry.HostManifest{
				Name:              f.Name,
				Description:       f.Description,
				Path:              path,
				AllowedExtensions: f.AllowedExtensions,
				AllowedOrigins:    f.AllowedOrigins,
				Weight:            f.Weight,
			}

			if f.Stdout {
				m.ManifestPath = "-"
				if err := m.Validate(); err != nil {
					return err
				}
				data, err := registry.MarshalManifest(m)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}

			reg, release, err := a.openRegistry()
			if err != nil {
				return err
			}
			defer release()
			if err := reg.Register(cmd.Context(), m, f.TTL); err != nil {
				return err
			}
			a.logger.Info("host registered", zap.String("host", m.Name), zap.String("path", m.Path))
			return nil
		},
	}

	cmd.Flags().StringVar(&f.Name, "name", "", "application `NAME` the extension connects to")
	cmd.Flags().StringVar(&f.Path, "path", "", "host `EXECUTABLE`")
	cmd.Flags().StringVar(&f.Description, "description", "", "manifest description")
	cmd.Flags().StringSliceVar(&f.AllowedExtensions, "allowed-extension", nil, "Firefox extension `ID` allowed to start the host")
	cmd.Flags().StringSliceVar(&f.AllowedOrigins, "allowed-origin", nil, "Chrome extension `ORIGIN` allowed to start the host")
	cmd.Flags().IntVar(&f.Weight, "weight", 0, "weight for --balancer random")
	cmd.Flags().Int64Var(&f.TTL, "ttl", 0, "etcd lease in seconds; the entry expires after that unless renewed (0: permanent)")
	cmd.Flags().BoolVar(&f.Stdout, "stdout", false, "print the manifest instead of registering it")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("path")
	return cmd
}

func newHostsRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove NAME PATH",
		Short: "Remove the manifest of a host",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, release, err := a.openRegistry()
			if err != nil {
				return err
			}
			defer release()

			path, err := filepath.Abs(args[1])
			if err != nil {
				return errors.Wrap(err, "host path")
			}
			return reg.Deregister(cmd.Context(), args[0], path)
		},
	}
}
