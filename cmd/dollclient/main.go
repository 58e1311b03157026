// Command dollclient simulates a doll: it authenticates, uploads a recorded
// clip to /talk and saves the spoken reply.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"

	"ai-doll-conversation-service/internal/service/audio"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	var (
		server  string
		token   string
		timeout int64
	)

	cmd := &cli.Command{
		Name:  "dollclient",
		Usage: "Talk to the doll conversation service like a device would",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "server",
				Aliases:     []string{"s"},
				Usage:       "Base URL of the HTTP API",
				Value:       "http://localhost:8001",
				Sources:     cli.EnvVars("DOLL_SERVER"),
				Destination: &server,
			},
			&cli.StringFlag{
				Name:        "token",
				Aliases:     []string{"t"},
				Usage:       "Device auth token",
				Sources:     cli.EnvVars("DOLL_MASTER_AUTH_TOKEN"),
				Destination: &token,
			},
			&cli.IntFlag{
				Name:        "timeout",
				Usage:       "Request timeout in seconds",
				Value:       90,
				Destination: &timeout,
			},
		},
		Commands: []*cli.Command{
			authCommand(&server, &token, &timeout),
			talkCommand(&server, &token, &timeout),
			healthCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal().Err(err).Msg("dollclient failed")
	}
}

func authCommand(server, token *string, timeout *int64) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Check the device token against /auth/doll",
		Action: func(ctx context.Context, c *cli.Command) error {
			body, err := json.Marshal(map[string]string{"auth_token": *token})
			if err != nil {
				return goerr.Wrap(err, "failed to encode auth request")
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(*server, "/")+"/auth/doll", bytes.NewReader(body))
			if err != nil {
				return goerr.Wrap(err, "failed to build request")
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := httpClient(*timeout).Do(req)
			if err != nil {
				return goerr.Wrap(err, "auth request failed")
			}
			defer resp.Body.Close()

			out, _ := io.ReadAll(resp.Body)
			log.Info().Int("status", resp.StatusCode).Msg(strings.TrimSpace(string(out)))
			if resp.StatusCode != http.StatusOK {
				return goerr.New("device token rejected", goerr.V("status", resp.StatusCode))
			}
			return nil
		},
	}
}

func talkCommand(server, token *string, timeout *int64) *cli.Command {
	var (
		childID string
		output  string
	)

	return &cli.Command{
		Name:      "talk",
		Usage:     "Upload a clip and save the reply audio",
		ArgsUsage: "<audio-file>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "child",
				Aliases:     []string{"c"},
				Usage:       "Child id the clip belongs to",
				Value:       "test-child",
				Destination: &childID,
			},
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "Where to write the reply",
				Value:       "reply.mp3",
				Destination: &output,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() == 0 {
				return goerr.New("audio-file is required")
			}
			path := c.Args().Get(0)

			clip, err := os.ReadFile(path)
			if err != nil {
				return goerr.Wrap(err, "failed to read clip", goerr.V("path", path))
			}
			info := audio.Detect(clip)
			log.Info().
				Str("format", string(info.Format)).
				Int("sampleRate", info.SampleRateHz).
				Int("bytes", len(clip)).
				Msg("Uploading clip")

			req, err := talkRequest(ctx, *server, *token, childID, filepath.Base(path), clip)
			if err != nil {
				return err
			}

			start := time.Now()
			resp, err := httpClient(*timeout).Do(req)
			if err != nil {
				return goerr.Wrap(err, "talk request failed")
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return goerr.Wrap(err, "failed to read reply")
			}
			logger := log.With().
				Int("status", resp.StatusCode).
				Str("turnId", resp.Header.Get("X-Turn-Id")).
				Dur("latency", time.Since(start)).
				Logger()

			if !strings.HasPrefix(resp.Header.Get("Content-Type"), "audio/") {
				logger.Error().Msg(strings.TrimSpace(string(body)))
				return goerr.New("service returned an error", goerr.V("status", resp.StatusCode))
			}
			if err := os.WriteFile(output, body, 0o644); err != nil {
				return goerr.Wrap(err, "failed to save reply", goerr.V("path", output))
			}
			if resp.StatusCode == http.StatusServiceUnavailable {
				logger.Warn().Str("output", output).Msg("Service degraded, saved apology")
				return nil
			}
			logger.Info().Str("output", output).Int("bytes", len(body)).Msg("Saved reply")
			return nil
		},
	}
}

func talkRequest(ctx context.Context, server, token, childID, fileName string, clip []byte) (*http.Request, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("child_id", childID); err != nil {
		return nil, goerr.Wrap(err, "failed to write child_id")
	}
	fw, err := mw.CreateFormFile("audio_file", fileName)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create audio_file part")
	}
	if _, err := fw.Write(clip); err != nil {
		return nil, goerr.Wrap(err, "failed to write audio_file")
	}
	if err := mw.Close(); err != nil {
		return nil, goerr.Wrap(err, "failed to finish form")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(server, "/")+"/talk", &body)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Auth-Token", token)
	return req, nil
}

func healthCommand() *cli.Command {
	var addr string

	return &cli.Command{
		Name:  "health",
		Usage: "Query the gRPC health service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "grpc",
				Usage:       "gRPC server address",
				Value:       "localhost:50051",
				Destination: &addr,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
			if err != nil {
				return goerr.Wrap(err, "failed to connect", goerr.V("addr", addr))
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			resp, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{})
			if err != nil {
				return goerr.Wrap(err, "health check failed")
			}
			fmt.Println(resp.GetStatus().String())
			return nil
		},
	}
}

func httpClient(timeoutSeconds int64) *http.Client {
	return &http.Client{Timeout: time.Duration(timeoutSeconds) * time.Second}
}
