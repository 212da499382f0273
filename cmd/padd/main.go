package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/worshippad/padd/internal/audio"
	"github.com/worshippad/padd/internal/config"
	"github.com/worshippad/padd/internal/control"
	"github.com/worshippad/padd/internal/pad"
	"github.com/worshippad/padd/internal/stream"
)

func main() {
	cfg := config.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Println("worshippad starting up...")

	loader := audio.NewDirLoader(cfg.AssetDir, cfg.ClipCache)
	player, err := pad.NewPlayer(pad.Config{
		Volume:        cfg.Volume,
		StartingKey:   cfg.StartingKey,
		LoopThreshold: cfg.LoopThreshold,
		PollInterval:  cfg.PollInterval,
		Crossfade:     cfg.Crossfade,
		FadeStep:      cfg.FadeStep,
		KeyFade:       cfg.KeyFade,
		KeyGap:        cfg.KeyGap,
		StartOffset:   cfg.StartOffset,
		Curve:         cfg.FadeCurve,
	}, loader)
	if err != nil {
		log.Fatalf("Invalid pad configuration: %v", err)
	}
	defer player.Close()

	// Real-time driver: renders the pad mix every 20ms
	driver := pad.NewDriver(player)
	go driver.Run(ctx)

	// Broadcaster: fan-out PCM frames to all listeners
	broadcaster := stream.NewBroadcaster()
	go broadcaster.Run(ctx, driver.Frames())

	if cfg.Speaker {
		go func() {
			if err := stream.PlaySpeaker(ctx, broadcaster, cfg.SpeakerBuffer); err != nil {
				log.Printf("Local speaker disabled: %v", err)
			}
		}()
	}

	webrtcHandler := stream.NewWebRTCHandler(broadcaster, cfg.OpusBitrate)
	defer webrtcHandler.Close()

	mux := http.NewServeMux()
	mux.Handle("/api/", control.NewHandler(player))
	mux.Handle("/stream", stream.NewHTTPHandler(broadcaster, cfg.MP3Bitrate))
	mux.Handle("/offer", webrtcHandler)

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		log.Println("Shutting down...")
		server.Close()
	}()

	log.Printf("worshippad live on %s (assets: %s)", addr, cfg.AssetDir)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("HTTP server error: %v", err)
	}
}
