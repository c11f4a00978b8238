package booking

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lexiqai/chat-orchestrator/internal/chat"
	"github.com/lexiqai/chat-orchestrator/internal/tools"
)

const (
	ToolGetBookingDetails = "getBookingDetails"
	ToolChangeBooking     = "changeBooking"
	ToolCancelBooking     = "cancelBooking"
)

var customerParams = map[string]chat.ParameterSpec{
	"bookingNumber": {Type: "string", Description: "Booking reference, for example BK123", Required: true},
	"firstName":     {Type: "string", Description: "Customer first name", Required: true},
	"lastName":      {Type: "string", Description: "Customer last name", Required: true},
}

type customerArgs struct {
	BookingNumber string `json:"bookingNumber"`
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
}

type changeArgs struct {
	customerArgs
	Date string `json:"date"`
	From string `json:"from"`
	To   string `json:"to"`
}

// Tools returns the booking tools backed by svc
func Tools(svc *Service) []tools.Tool {
	changeParams := withParams(customerParams, map[string]chat.ParameterSpec{
		"date": {Type: "string", Description: "New flight date, YYYY-MM-DD", Required: true},
		"from": {Type: "string", Description: "New departure airport"},
		"to":   {Type: "string", Description: "New arrival airport"},
	})

	return []tools.Tool{
		{
			Spec: chat.ToolSpecification{
				Name:        ToolGetBookingDetails,
				Description: "Get booking details for a booking number and customer name",
				Parameters:  customerParams,
			},
			Executor: tools.ExecutorFunc(func(ctx context.Context, req chat.ToolCallRequest, _ string) (string, error) {
				var args customerArgs
				if err := decode(req, &args); err != nil {
					return "", err
				}
				b, err := svc.Get(args.BookingNumber, args.FirstName, args.LastName)
				if err != nil {
					return "", err
				}
				return encode(b)
			}),
		},
		{
			Spec: chat.ToolSpecification{
				Name:        ToolChangeBooking,
				Description: "Change the date and route of a confirmed booking",
				Parameters:  changeParams,
			},
			Executor: tools.ExecutorFunc(func(ctx context.Context, req chat.ToolCallRequest, _ string) (string, error) {
				var args changeArgs
				if err := decode(req, &args); err != nil {
					return "", err
				}
				b, err := svc.Change(args.BookingNumber, args.FirstName, args.LastName, Change{Date: args.Date, From: args.From, To: args.To})
				if err != nil {
					return "", err
				}
				return encode(b)
			}),
		},
		{
			Spec: chat.ToolSpecification{
				Name:        ToolCancelBooking,
				Description: "Cancel a booking",
				Parameters:  customerParams,
			},
			Executor: tools.ExecutorFunc(func(ctx context.Context, req chat.ToolCallRequest, _ string) (string, error) {
				var args customerArgs
				if err := decode(req, &args); err != nil {
					return "", err
				}
				b, err := svc.Cancel(args.BookingNumber, args.FirstName, args.LastName)
				if err != nil {
					return "", err
				}
				return encode(b)
			}),
		},
	}
}

func withParams(base, extra map[string]chat.ParameterSpec) map[string]chat.ParameterSpec {
	out := make(map[string]chat.ParameterSpec, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func decode(req chat.ToolCallRequest, v interface{}) error {
	if err := json.Unmarshal([]byte(req.Arguments), v); err != nil {
		return fmt.Errorf("failed to decode %s arguments: %w", req.Name, err)
	}
	return nil
}

func encode(b Details) (string, error) {
	out, err := json.Marshal(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
