package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	grpcserver "github.com/and161185/goph-landing/internal/server/grpc"
)

// tokenExpiry reads exp without verifying the signature; the server verifies.
func tokenExpiry(tok string, fallback time.Time) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tok, &claims); err != nil || claims.ExpiresAt == nil {
		return fallback
	}
	return claims.ExpiresAt.Time
}

// withClient dials with the stored token (unless anonymous) and runs fn under the RPC timeout.
func (g *globalOpts) withClient(ctx context.Context, anonymous bool, fn func(context.Context, *grpcserver.AdminClient) error) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var token string
	if !anonymous {
		t, err := loadToken()
		if err != nil {
			return err
		}
		token = t
	}
	cc, cli, err := g.dial(ctx, token)
	if err != nil {
		return err
	}
	defer cc.Close()
	if err := fn(ctx, cli); err != nil {
		return rpcError(err)
	}
	return nil
}

func newLoginCmd(g *globalOpts) *cobra.Command {
	var secret string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Exchange the admin secret for a token (saved locally)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if secret == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return err
				}
				secret = strings.TrimRight(line, "\r\n")
			}
			if secret == "" {
				return errors.New("need --secret or a secret on stdin")
			}
			return g.withClient(cmd.Context(), true, func(ctx context.Context, cli *grpcserver.AdminClient) error {
				resp, err := cli.Login(ctx, wrapperspb.String(secret))
				if err != nil {
					return err
				}
				tok := resp.GetValue()
				if err := saveToken(tok, tokenExpiry(tok, time.Now().Add(15*time.Minute))); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "ok")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "admin secret (default: first line of stdin)")
	return cmd
}

func newMintCmd(g *globalOpts) *cobra.Command {
	var (
		in     instructionFlags
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint a landing link on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := in.raw()
			if err != nil {
				return err
			}
			obj, ok := raw.(map[string]any)
			if !ok {
				return errors.New("instruction set must be a JSON object")
			}
			req, err := structpb.NewStruct(obj)
			if err != nil {
				return err
			}
			return g.withClient(cmd.Context(), false, func(ctx context.Context, cli *grpcserver.AdminClient) error {
				resp, err := cli.Encrypt(ctx, req)
				if err != nil {
					return err
				}
				if asJSON {
					printJSON(cmd.OutOrStdout(), resp.AsMap())
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), resp.GetFields()["url"].GetStringValue())
				return nil
			})
		},
	}
	in.bind(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print payload and url as JSON")
	return cmd
}

func newInspectCmd(g *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <payload|url>",
		Short: "Decrypt a payload on the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := payloadArg(args[0])
			if err != nil {
				return err
			}
			return g.withClient(cmd.Context(), false, func(ctx context.Context, cli *grpcserver.AdminClient) error {
				resp, err := cli.Decrypt(ctx, wrapperspb.String(p))
				if err != nil {
					return err
				}
				printJSON(cmd.OutOrStdout(), resp.AsMap())
				return nil
			})
		},
	}
}

func newEventsCmd(g *globalOpts) *cobra.Command {
	var (
		since time.Duration
		limit int
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List recent routing analytics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := structpb.NewStruct(map[string]any{"since": since.String(), "limit": limit})
			if err != nil {
				return err
			}
			return g.withClient(cmd.Context(), false, func(ctx context.Context, cli *grpcserver.AdminClient) error {
				resp, err := cli.Events(ctx, req)
				if err != nil {
					return err
				}
				printJSON(cmd.OutOrStdout(), resp.AsSlice())
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&since, "since", grpcserver.DefaultEventsSince, "look-back window")
	cmd.Flags().IntVar(&limit, "limit", grpcserver.DefaultEventsLimit, "max rows")
	return cmd
}

func newStatsCmd(g *globalOpts) *cobra.Command {
	var since time.Duration
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Count routing analytics by kind and action",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withClient(cmd.Context(), false, func(ctx context.Context, cli *grpcserver.AdminClient) error {
				resp, err := cli.Stats(ctx, wrapperspb.String(since.String()))
				if err != nil {
					return err
				}
				printJSON(cmd.OutOrStdout(), resp.AsMap())
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&since, "since", grpcserver.DefaultStatsSince, "look-back window")
	return cmd
}
