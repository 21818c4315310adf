// cmd/hyphactl/invoke.go
// Implements `hyphactl invoke`: a one-off debug call proxied through a
// router's control plane, for operators who want to exercise a registered
// service without standing up a full WebSocket peer.
package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	hyphapb "github.com/Voskan/hyphagw/internal/proto"
)

func newInvokeCmd() *cobra.Command {
	var (
		serverURL string
		workspace string
		to        string
		member    string
		argsJSON  string
	)

	cmd := &cobra.Command{
		Use:   "invoke",
		Short: "Invoke a service member on a workspace through the control plane",
		RunE: func(cmd *cobra.Command, args []string) error {
			var decodedArgs []any
			if argsJSON != "" {
				if err := json.Unmarshal([]byte(argsJSON), &decodedArgs); err != nil {
					return fmt.Errorf("--args must be a JSON array: %w", err)
				}
			}

			argList, err := structpb.NewList(decodedArgs)
			if err != nil {
				return err
			}

			in, err := structpb.NewStruct(map[string]any{
				"workspace": workspace,
				"to":        to,
				"member":    member,
				"args":      argList.AsSlice(),
			})
			if err != nil {
				return err
			}

			conn, err := grpc.NewClient(serverURL, grpc.WithTransportCredentials(insecure.NewCredentials()))
			if err != nil {
				return err
			}
			defer conn.Close()

			out, err := hyphapb.NewControlServiceClient(conn).Invoke(cmd.Context(), in)
			if err != nil {
				return err
			}

			body, err := json.MarshalIndent(out.AsMap(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(body))
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server-url", "localhost:9528", "hyphagw control-plane gRPC address (host:port)")
	cmd.Flags().StringVar(&workspace, "workspace", "default", "workspace the target service belongs to")
	cmd.Flags().StringVar(&to, "to", "", "fully-qualified service id (workspace/client:service)")
	cmd.Flags().StringVar(&member, "member", "", "member name to invoke")
	cmd.Flags().StringVar(&argsJSON, "args", "[]", "JSON array of positional arguments")
	return cmd
}
