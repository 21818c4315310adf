// cmd/hyphactl/attach.go
// Implements `hyphactl stream-events`: dials a router's control plane and
// prints every connect/disconnect/register-service event as JSON until
// interrupted.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"

	hyphapb "github.com/Voskan/hyphagw/internal/proto"
)

func newStreamEventsCmd() *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "stream-events",
		Short: "Stream connect/disconnect/register-service events from a router's control plane",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt)
			go func() {
				<-sigCh
				cancel()
			}()

			conn, err := grpc.NewClient(serverURL, grpc.WithTransportCredentials(insecure.NewCredentials()))
			if err != nil {
				return err
			}
			defer conn.Close()

			client := hyphapb.NewControlServiceClient(conn)
			stream, err := client.StreamEvents(ctx, &emptypb.Empty{})
			if err != nil {
				return err
			}

			for {
				ev, err := stream.Recv()
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return err
				}
				body, _ := json.Marshal(ev.AsMap())
				fmt.Println(string(body))
			}
		},
	}

	cmd.Flags().StringVar(&serverURL, "server-url", "localhost:9528", "hyphagw control-plane gRPC address (host:port)")
	return cmd
}
