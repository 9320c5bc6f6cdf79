package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/omochice/openim-session/internal/admin"
	"github.com/omochice/openim-session/internal/session"
	"github.com/omochice/openim-session/internal/sink"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect and print pushed messages until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.log.Sync()

			ctx := cmd.Context()

			sinks := sink.Multi{sink.NewLog(a.log)}
			if a.cfg.NATS.URL != "" {
				nc, err := sink.Connect(a.cfg.NATS.URL, "imclient-"+a.cfg.Session.UserID)
				if err != nil {
					return err
				}
				defer nc.Drain()
				sinks = append(sinks, sink.NewNATS(nc, a.cfg.NATS.SubjectPrefix, a.log))
				a.log.Info("relaying messages to nats", zap.String("url", a.cfg.NATS.URL))
			}

			s := a.newSession(sinks)

			if addr := a.cfg.Metrics.Addr; addr != "" {
				router := admin.Router(a.registry, func() (string, bool) {
					st := s.State()
					return st.String(), st == session.StateRunning
				})
				go func() {
					if err := admin.Serve(ctx, addr, router, a.log); err != nil {
						a.log.Error("admin server stopped", zap.Error(err))
					}
				}()
			}

			go func() {
				for ev := range s.Events() {
					switch ev.Kind {
					case session.EventKicked:
						a.log.Warn("logged in from another device")
					case session.EventLoggedOut:
						a.log.Warn("token revoked by server")
					case session.EventClosed:
						a.log.Info("session closed", zap.Stringer("reason", ev.Reason), zap.Error(ev.Err))
					}
				}
			}()

			return s.Run(ctx)
		},
	}
}
