package main

import (
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/xraph/ident/principal"
)

func (a *app) resolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <connector-id> <connector-local-id>",
		Short: "Find the principal owning a connector-local record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kc, err := a.kindClient()
			if err != nil {
				return err
			}
			p, err := kc.Resolve(cmd.Context(), args[1], args[0])
			if err != nil {
				return err
			}
			return a.print(p, func(w io.Writer) { printPrincipal(w, p) })
		},
	}
}

func (a *app) existsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exists <principal-id>",
		Short: "Report whether a principal has any partition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kc, err := a.kindClient()
			if err != nil {
				return err
			}
			ok, err := kc.Exists(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.print(map[string]any{"principal_id": args[0], "exists": ok}, func(w io.Writer) {
				fmt.Fprintln(w, ok)
			})
		},
	}
}

// principalFile is the YAML document accepted by "create --file".
type principalFile struct {
	Domain     string `yaml:"domain"`
	Principals []struct {
		ID         string `yaml:"id"`
		Partitions []struct {
			Connector string `yaml:"connector"`
			LocalID   string `yaml:"local_id"`
			StoreKind string `yaml:"store_kind"`
		} `yaml:"partitions"`
	} `yaml:"principals"`
}

func (a *app) createCmd() *cobra.Command {
	var (
		principalID string
		domain      string
		partitions  []string
		file        string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a principal, or many from a YAML file",
		Example: `  identctl create --domain EXAMPLE.COM --partition ldap=uid=alice --partition kerberos=alice@EXAMPLE.COM:CREDENTIAL
  identctl --group create --file groups.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kc, err := a.kindClient()
			if err != nil {
				return err
			}

			if file != "" {
				ps, fileDomain, err := readPrincipalFile(file)
				if err != nil {
					return err
				}
				if domain == "" {
					domain = fileDomain
				}
				resp, err := kc.CreateMany(cmd.Context(), ps, domain)
				if err != nil {
					return err
				}
				if err := a.print(resp, func(w io.Writer) {
					for _, id := range resp.Created {
						fmt.Fprintf(w, "created\t%s\n", id)
					}
					for _, f := range resp.Failures {
						fmt.Fprintf(w, "failed\t#%d %s\t%s\n", f.Index, f.PrincipalID, f.Error)
					}
				}); err != nil {
					return err
				}
				if len(resp.Failures) > 0 {
					return fmt.Errorf("%d of %d principals failed", len(resp.Failures), len(ps))
				}
				return nil
			}

			parts, err := parsePartitions(partitions)
			if err != nil {
				return err
			}
			p, err := kc.Create(cmd.Context(), &principal.Principal{ID: principalID, Partitions: parts}, domain)
			if err != nil {
				return err
			}
			return a.print(p, func(w io.Writer) { printPrincipal(w, p) })
		},
	}

	cmd.Flags().StringVar(&principalID, "id", "", "Principal ID (generated by the server when empty)")
	cmd.Flags().StringVar(&domain, "domain", "", "Domain (assigned by the server when empty)")
	cmd.Flags().StringArrayVar(&partitions, "partition", nil, "Partition as connector=local-id[:IDENTITY|CREDENTIAL], repeatable")
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML file of principals to create in bulk")
	cmd.MarkFlagsMutuallyExclusive("file", "partition")
	cmd.MarkFlagsMutuallyExclusive("file", "id")
	return cmd
}

func (a *app) connectorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connector <principal-id> <connector-id>",
		Short: "Print the id a principal holds in one connector",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kc, err := a.kindClient()
			if err != nil {
				return err
			}
			local, err := kc.ConnectorLocalID(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			v := map[string]string{"principal_id": args[0], "connector_id": args[1], "connector_local_id": local}
			return a.print(v, func(w io.Writer) { fmt.Fprintln(w, local) })
		},
	}
}

func (a *app) mappingsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mappings <principal-id>",
		Short: "List the connector-local ids of a principal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kc, err := a.kindClient()
			if err != nil {
				return err
			}
			m, err := kc.ConnectorMappings(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.print(m, func(w io.Writer) { printMappings(w, m) })
		},
	}
}

func (a *app) updateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update <principal-id> <connector=local-id>...",
		Short: "Change connector-local ids of a principal as one batch",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mapping := make(map[string]string, len(args)-1)
			for _, arg := range args[1:] {
				connector, local, ok := strings.Cut(arg, "=")
				if !ok || connector == "" || local == "" {
					return fmt.Errorf("invalid mapping %q: want connector=local-id", arg)
				}
				mapping[connector] = local
			}

			kc, err := a.kindClient()
			if err != nil {
				return err
			}
			return kc.UpdatePartitions(cmd.Context(), args[0], mapping)
		},
	}
}

func (a *app) domainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "domain <principal-id>",
		Short: "Print the domain of a principal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kc, err := a.kindClient()
			if err != nil {
				return err
			}
			d, err := kc.DomainOf(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.print(map[string]string{"principal_id": args[0], "domain": d}, func(w io.Writer) {
				fmt.Fprintln(w, d)
			})
		},
	}
}

func (a *app) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <principal-id>",
		Short: "Delete every partition of a principal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kc, err := a.kindClient()
			if err != nil {
				return err
			}
			return kc.Delete(cmd.Context(), args[0])
		},
	}
}

// parsePartitions parses "connector=local-id[:STOREKIND]" flags. The store
// kind suffix is only taken when it names a known store kind, so local ids
// may contain colons.
func parsePartitions(args []string) ([]principal.Partition, error) {
	out := make([]principal.Partition, 0, len(args))
	for _, arg := range args {
		connector, local, ok := strings.Cut(arg, "=")
		if !ok || connector == "" || local == "" {
			return nil, fmt.Errorf("invalid partition %q: want connector=local-id[:IDENTITY|CREDENTIAL]", arg)
		}
		sk := principal.StoreIdentity
		if i := strings.LastIndexByte(local, ':'); i > 0 {
			if k := principal.StoreKind(strings.ToUpper(local[i+1:])); k.Valid() {
				sk = k
				local = local[:i]
			}
		}
		out = append(out, principal.Partition{ConnectorID: connector, ConnectorLocalID: local, StoreKind: sk})
	}
	return out, nil
}

func readPrincipalFile(path string) ([]*principal.Principal, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", path, err)
	}
	var doc principalFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, "", fmt.Errorf("parse %s: %w", path, err)
	}

	ps := make([]*principal.Principal, len(doc.Principals))
	for i, in := range doc.Principals {
		p := &principal.Principal{ID: in.ID}
		for _, part := range in.Partitions {
			sk := principal.StoreKind(strings.ToUpper(part.StoreKind))
			if sk == "" {
				sk = principal.StoreIdentity
			}
			p.Partitions = append(p.Partitions, principal.Partition{
				ConnectorID: part.Connector, ConnectorLocalID: part.LocalID, StoreKind: sk,
			})
		}
		ps[i] = p
	}
	return ps, doc.Domain, nil
}

func printPrincipal(w io.Writer, p *principal.Principal) {
	fmt.Fprintf(w, "id:     %s\nkind:   %s\ndomain: %s\n", p.ID, p.Kind, p.Domain)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CONNECTOR\tLOCAL ID\tSTORE")
	for _, part := range p.Partitions {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", part.ConnectorID, part.ConnectorLocalID, part.StoreKind)
	}
	_ = tw.Flush()
}

func printMappings(w io.Writer, m map[string]string) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CONNECTOR\tLOCAL ID")
	for _, c := range slices.Sorted(maps.Keys(m)) {
		fmt.Fprintf(tw, "%s\t%s\n", c, m[c])
	}
	_ = tw.Flush()
}
