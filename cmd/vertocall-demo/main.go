/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Command vertocall-demo is a minimal CLI exercising login, an outbound
// call, and hangup against a Verto-compatible gateway — grounded on the
// teacher SDK's own small test-websocket command, generalized from a
// raw frame dump to a full Client session.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vertocall/go-verto"
	"github.com/vertocall/go-verto/emitter"
	"github.com/vertocall/go-verto/session"
)

func main() {
	var (
		user        = flag.String("user", "", "SIP user")
		password    = flag.String("password", "", "SIP password")
		destination = flag.String("dest", "", "destination number to dial once logged in")
		callerName  = flag.String("caller-name", "vertocall-demo", "caller ID name")
		callerNum   = flag.String("caller-number", "", "caller ID number")
		callSeconds = flag.Int("call-seconds", 10, "seconds to hold the call open before hanging up")
	)
	flag.Parse()

	if *user == "" || *password == "" {
		log.Fatal("vertocall-demo: -user and -password are required")
	}

	logger := log.New(os.Stdout, "vertocall-demo: ", log.LstdFlags)

	client := vertocall.New(vertocall.Config{Logger: logger})
	events := client.Events()

	hungUp := make(chan struct{})
	events.On(emitter.EventError, func(data any) {
		payload := data.(emitter.ErrorPayload)
		logger.Printf("ERROR: %s", payload.Message)
	})
	events.On(emitter.EventLogin, func(data any) {
		payload := data.(emitter.LoginPayload)
		logger.Printf("LOGIN: session %s", payload.SessionID)
	})
	events.On(emitter.EventClientReady, func(data any) {
		logger.Printf("CLIENT_READY")
		if *destination == "" {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		c, err := client.Session().NewCall(ctx, *callerName, *callerNum, *destination, "")
		if err != nil {
			logger.Printf("dial failed: %v", err)
			return
		}
		logger.Printf("dialing call %s", c.ID())
		go func() {
			time.Sleep(time.Duration(*callSeconds) * time.Second)
			c.EndCall(0)
		}()
	})
	events.On(emitter.EventAnswer, func(data any) {
		payload := data.(emitter.AnswerPayload)
		logger.Printf("ANSWER: call %s", payload.CallID)
	})
	events.On(emitter.EventBye, func(data any) {
		payload := data.(emitter.ByePayload)
		logger.Printf("BYE: call %s", payload.CallID)
		select {
		case hungUp <- struct{}{}:
		default:
		}
	})

	if err := client.Connect(); err != nil {
		log.Fatalf("vertocall-demo: connect: %v", err)
	}
	client.Session().CredentialLogin(session.CredentialConfig{
		SipUser:           *user,
		SipPassword:       *password,
		SipCallerIDName:   *callerName,
		SipCallerIDNumber: *callerNum,
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
	case <-hungUp:
	}

	client.Disconnect()
}
