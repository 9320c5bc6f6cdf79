package main

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func seqCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seq",
		Short: "Print the newest seq of every conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.log.Sync()

			s := a.newSession(nil)
			ctx := cmd.Context()
			done, err := connected(ctx, s, a.cfg.Session.HandshakeTimeout)
			if err != nil {
				return err
			}
			defer func() {
				s.Close()
				<-done
			}()

			resp, err := s.GetNewestSeq(ctx)
			if err != nil {
				return errors.Wrap(err, "get newest seq")
			}
			ids := make([]string, 0, len(resp.MaxSeqs))
			for id := range resp.MaxSeqs {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			for _, id := range ids {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\tmax=%d\tmin=%d\n", id, resp.MaxSeqs[id], resp.MinSeqs[id])
			}
			return nil
		},
	}
}
