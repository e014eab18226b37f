package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/nnsuite/nnpipe"
	"github.com/nnsuite/nnpipe/filter"
	"github.com/nnsuite/nnpipe/graph"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [KIND]",
		Short: "Show element kinds or properties of one kind",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return listKinds(cmd.OutOrStdout())
			}
			return showKind(cmd.OutOrStdout(), args[0])
		},
	}
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	return table
}

func listKinds(w io.Writer) error {
	var data [][]string
	for _, k := range graph.Kinds() {
		ok, err := nnpipe.IsElementAvailable(k.Name)
		if err != nil {
			return err
		}
		data = append(data, []string{k.Name, k.Class.String(), yesNo(ok), k.Description})
	}
	table := newTable(w, "NAME", "CLASS", "AVAILABLE", "DESCRIPTION")
	table.AppendBulk(data)
	table.Render()

	fmt.Fprintf(w, "\nFilter frameworks: %s\n", strings.Join(filter.Frameworks(), ", "))
	return nil
}

func showKind(w io.Writer, name string) error {
	k, ok := graph.LookupKind(name)
	if !ok {
		return fmt.Errorf("%w: %s", nnpipe.ErrUnknownElement, name)
	}
	ok, err := nnpipe.IsElementAvailable(name)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s (%v): %s\n", k.Name, k.Class, k.Description)
	fmt.Fprintf(w, "available: %s\n\n", yesNo(ok))

	table := newTable(w, "PROPERTY")
	for _, p := range k.Properties {
		table.Append([]string{p})
	}
	table.Render()
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
