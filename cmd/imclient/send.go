package main

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/omochice/openim-session/pkg/protocol"
	"github.com/omochice/openim-session/pkg/protocol/sdkws"
)

func sendCmd() *cobra.Command {
	var (
		recvID  string
		groupID string
		text    string
	)
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one text message",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (recvID == "") == (groupID == "") {
				return errors.New("exactly one of --to and --group is required")
			}
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.log.Sync()

			content, err := json.Marshal(map[string]string{"content": text})
			if err != nil {
				return err
			}
			msg := &sdkws.MsgData{
				RecvID:      recvID,
				GroupID:     groupID,
				ClientMsgID: uuid.NewString(),
				SessionType: protocol.SessionSingleChat,
				ContentType: int32(protocol.ContentText),
				Content:     content,
			}
			if groupID != "" {
				msg.SessionType = protocol.SessionReadGroup
			}

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

			ack, err := s.SendMsg(ctx, msg)
			if err != nil {
				return errors.Wrap(err, "send failed")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent clientMsgID=%s serverMsgID=%s sendTime=%d\n",
				ack.ClientMsgID, ack.ServerMsgID, ack.SendTime)
			return nil
		},
	}
	cmd.Flags().StringVar(&recvID, "to", "", "recipient user ID")
	cmd.Flags().StringVar(&groupID, "group", "", "recipient group ID")
	cmd.Flags().StringVar(&text, "text", "", "message text")
	cmd.MarkFlagRequired("text")
	return cmd
}
