package tools

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/voxhollow/sibyl/internal/session"
)

// canonicalTools builds the standard tool set over deps. Order here is the
// prompt offer order.
func canonicalTools(deps Deps) []Tool {
	return []Tool{
		{
			Name:        CloseVoiceChannel,
			Description: "Close the voice channel. Only for use when you have answered a user request or the conversation has naturally come to an end.",
			Parameters:  objectSchema(map[string]any{}),
			VoiceOnly:   true,
			Handler:     closeVoiceHandler,
		},
		{
			Name:        "get_current_time",
			Description: "Get the current time.",
			Parameters:  objectSchema(map[string]any{}),
			Handler:     timeHandler(deps),
		},
		{
			Name:        "perform_math_operation",
			Description: "Perform an arithmetic operation on one or two numbers.",
			Parameters: objectSchema(map[string]any{
				"operation": map[string]any{
					"type":        "string",
					"description": "One of addition, subtraction, multiplication, division, power, square_root.",
				},
				"number1": map[string]any{
					"type":        "number",
					"description": "The first operand.",
				},
				"number2": map[string]any{
					"type":        "number",
					"description": "The second operand. Not used for square_root.",
				},
			}, "operation", "number1"),
			Handler: mathHandler,
		},
		{
			Name:        "perform_search",
			Description: "Search the web or Wikipedia, receiving titles, summaries and links for further knowledge seeking.",
			Parameters: objectSchema(map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The query to search with.",
				},
				"source": map[string]any{
					"type":        "string",
					"description": "Where to search. Either web or wikipedia.",
				},
				"number": map[string]any{
					"type":        "integer",
					"description": "Number of results to return. Default is 10.",
				},
			}, "query", "source"),
			Handler: searchHandler(deps),
		},
		{
			Name:        "open_website",
			Description: "Open a website to see its contents to answer user requests.",
			Parameters: objectSchema(map[string]any{
				"url": map[string]any{
					"type":        "string",
					"description": "The full URL of the web page to view contents of.",
				},
			}, "url"),
			Handler: websiteHandler(deps),
		},
		{
			Name:        "home_automation_action",
			Description: "Control the home automation: set the state of a switch or activate a scene. IMPORTANT: you must check the real entity id before using this.",
			Parameters: objectSchema(map[string]any{
				"action_type": map[string]any{
					"type":        "string",
					"description": "Either set_switch or activate_scene.",
				},
				"entity_id": map[string]any{
					"type":        "string",
					"description": "The id of the entity to act on.",
				},
				"state": map[string]any{
					"type":        "string",
					"description": "The desired switch state. Either on or off.",
				},
			}, "action_type", "entity_id"),
			Handler: homeHandler(deps),
		},
		{
			Name:        "check_weather",
			Description: "Check current weather conditions or the short-term forecast for a location.",
			Parameters: objectSchema(map[string]any{
				"location": map[string]any{
					"type":        "string",
					"description": "The place to check. Defaults to the configured home location.",
				},
				"forecast": map[string]any{
					"type":        "boolean",
					"description": "True for the short-term forecast instead of current conditions.",
				},
			}),
			Handler: weatherHandler(deps),
		},
		{
			Name:        "update_behaviour",
			Description: "Add a standing behaviour rule the assistant must follow from now on.",
			Parameters: objectSchema(map[string]any{
				"rule": map[string]any{
					"type":        "string",
					"description": "The behaviour rule to add.",
				},
			}, "rule"),
			Handler: behaviorAddHandler(deps),
		},
		{
			Name:        "remove_behaviour",
			Description: "Remove a previously added behaviour rule.",
			Parameters: objectSchema(map[string]any{
				"rule": map[string]any{
					"type":        "string",
					"description": "The behaviour rule to remove.",
				},
			}, "rule"),
			Handler: behaviorRemoveHandler(deps),
		},
		{
			Name:        "list_behaviour",
			Description: "List the currently active behaviour rules.",
			Parameters:  objectSchema(map[string]any{}),
			Handler:     behaviorListHandler(deps),
		},
	}
}

func closeVoiceHandler(_ context.Context, _ map[string]any, sess *session.Session) (map[string]any, error) {
	if sess != nil {
		sess.CloseVoice.Set()
	}
	return map[string]any{"text": "Voice channel closed."}, nil
}

func timeHandler(deps Deps) Handler {
	return func(ctx context.Context, _ map[string]any, sess *session.Session) (map[string]any, error) {
		say(ctx, sess, "Checking Time")
		return map[string]any{"current_time": deps.Now().Format("03:04PM")}, nil
	}
}

func mathHandler(_ context.Context, params map[string]any, _ *session.Session) (map[string]any, error) {
	operation, err := stringParam(params, "operation")
	if err != nil {
		return nil, err
	}
	a, ok, err := numberParam(params, "number1")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("missing required parameter \"number1\"")
	}
	b, hasB, err := numberParam(params, "number2")
	if err != nil {
		return nil, err
	}

	needsB := operation != "square_root"
	if needsB && !hasB {
		return nil, fmt.Errorf("operation %s needs parameter \"number2\"", operation)
	}

	var result float64
	switch operation {
	case "addition":
		result = a + b
	case "subtraction":
		result = a - b
	case "multiplication":
		result = a * b
	case "division":
		if b == 0 {
			// A mathematical refusal, not a tool failure: the model gets
			// the message verbatim, without the dispatcher's error prefix.
			return map[string]any{"text": "Division by zero is undefined."}, nil
		}
		result = a / b
	case "power":
		result = math.Pow(a, b)
	case "square_root":
		if a < 0 {
			return map[string]any{"text": "Cannot take the square root of a negative number."}, nil
		}
		result = math.Sqrt(a)
	default:
		return nil, fmt.Errorf("unknown operation %q", operation)
	}
	return map[string]any{"result": result}, nil
}

func searchHandler(deps Deps) Handler {
	return func(ctx context.Context, params map[string]any, sess *session.Session) (map[string]any, error) {
		if deps.Search == nil {
			return nil, errors.New("search is not configured")
		}
		query, err := stringParam(params, "query")
		if err != nil {
			return nil, err
		}
		source, err := stringParam(params, "source")
		if err != nil {
			return nil, err
		}
		count := 0
		if n, ok, err := numberParam(params, "number"); err == nil && ok {
			count = int(n)
		}

		switch source {
		case "web":
			say(ctx, sess, fmt.Sprintf("Performing Web Search: '%s'", query))
			results, err := deps.Search.Web(ctx, query, count)
			if err != nil {
				return nil, err
			}
			if len(results) == 0 {
				return map[string]any{"web_search_results": "no results found, try another search term"}, nil
			}
			return map[string]any{"web_search_results": results}, nil
		case "wikipedia":
			say(ctx, sess, fmt.Sprintf("Performing research on Wikipedia on subject: %s", query))
			results, err := deps.Search.Wikipedia(ctx, query, count)
			if err != nil {
				return nil, err
			}
			if len(results) == 0 {
				return map[string]any{"wikipedia_search_results": "No results, try another search term"}, nil
			}
			return map[string]any{"wikipedia_search_results": results}, nil
		default:
			return nil, fmt.Errorf("unknown search source %q", source)
		}
	}
}

func websiteHandler(deps Deps) Handler {
	return func(ctx context.Context, params map[string]any, sess *session.Session) (map[string]any, error) {
		if deps.Web == nil {
			return nil, errors.New("website fetching is not configured")
		}
		url, err := stringParam(params, "url")
		if err != nil {
			return nil, err
		}
		say(ctx, sess, "Opening website")
		text, err := deps.Web.Fetch(ctx, url)
		if err != nil {
			return nil, err
		}
		return map[string]any{"web_link_results": text}, nil
	}
}

func homeHandler(deps Deps) Handler {
	return func(ctx context.Context, params map[string]any, sess *session.Session) (map[string]any, error) {
		if deps.Home == nil {
			return nil, errors.New("home automation is not configured")
		}
		actionType, err := stringParam(params, "action_type")
		if err != nil {
			return nil, err
		}
		entityID, err := stringParam(params, "entity_id")
		if err != nil {
			return nil, err
		}

		switch actionType {
		case "set_switch":
			state := optionalString(params, "state")
			say(ctx, sess, "Setting switch in Home Assistant")
			if err := deps.Home.SetSwitch(ctx, entityID, state); err != nil {
				return homeActionResult(actionType, entityID, err), nil
			}
			return map[string]any{"set_switch": fmt.Sprintf("successfully switched %s %s", entityID, state)}, nil
		case "activate_scene":
			say(ctx, sess, "Activating Scene in Home Assistant")
			if err := deps.Home.ActivateScene(ctx, entityID); err != nil {
				return homeActionResult(actionType, entityID, err), nil
			}
			return map[string]any{"activate_scene": fmt.Sprintf("Successfully activated %s", entityID)}, nil
		default:
			return nil, fmt.Errorf("unknown action_type %q", actionType)
		}
	}
}

// homeActionResult shapes a failed action so the model knows to re-check
// the entity list instead of apologising in a loop. It is returned as the
// tool's content, not an error, so the text reaches the model verbatim.
func homeActionResult(actionType, entityID string, err error) map[string]any {
	return map[string]any{"text": fmt.Sprintf(
		"Error performing %s on %s: %v. Consider the names of the entities you are trying to control.",
		actionType, entityID, err)}
}

func weatherHandler(deps Deps) Handler {
	return func(ctx context.Context, params map[string]any, sess *session.Session) (map[string]any, error) {
		if deps.Weather == nil {
			return nil, errors.New("weather is not configured")
		}
		location := optionalString(params, "location")
		if location == "" {
			location = deps.DefaultLocation
		}
		if location == "" {
			return nil, errors.New("no location given and no default configured")
		}

		say(ctx, sess, "Checking the weather")
		if boolParam(params, "forecast") {
			entries, err := deps.Weather.Forecast(ctx, location)
			if err != nil {
				return nil, err
			}
			return map[string]any{"forecast": entries}, nil
		}
		current, err := deps.Weather.Current(ctx, location)
		if err != nil {
			return nil, err
		}
		return map[string]any{"current_conditions": current}, nil
	}
}

func behaviorAddHandler(deps Deps) Handler {
	return func(_ context.Context, params map[string]any, _ *session.Session) (map[string]any, error) {
		if deps.Behaviors == nil {
			return nil, errors.New("behaviour store is not configured")
		}
		rule, err := stringParam(params, "rule")
		if err != nil {
			return nil, err
		}
		added, err := deps.Behaviors.Add(rule)
		if err != nil {
			return nil, err
		}
		if !added {
			return map[string]any{"text": "Behaviour rule already present."}, nil
		}
		return map[string]any{"text": fmt.Sprintf("Added behaviour rule: %s", rule)}, nil
	}
}

func behaviorRemoveHandler(deps Deps) Handler {
	return func(_ context.Context, params map[string]any, _ *session.Session) (map[string]any, error) {
		if deps.Behaviors == nil {
			return nil, errors.New("behaviour store is not configured")
		}
		rule, err := stringParam(params, "rule")
		if err != nil {
			return nil, err
		}
		removed, err := deps.Behaviors.Remove(rule)
		if err != nil {
			return nil, err
		}
		if !removed {
			return map[string]any{"text": "No such behaviour rule."}, nil
		}
		return map[string]any{"text": fmt.Sprintf("Removed behaviour rule: %s", rule)}, nil
	}
}

func behaviorListHandler(deps Deps) Handler {
	return func(_ context.Context, _ map[string]any, _ *session.Session) (map[string]any, error) {
		if deps.Behaviors == nil {
			return nil, errors.New("behaviour store is not configured")
		}
		rules, err := deps.Behaviors.Rules()
		if err != nil {
			return nil, err
		}
		if rules == nil {
			rules = []string{}
		}
		return map[string]any{"rules": rules}, nil
	}
}

// boolParam reads a boolean parameter, tolerating the string forms models
// sometimes emit.
func boolParam(params map[string]any, key string) bool {
	switch v := params[key].(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(v)
		return err == nil && b
	default:
		return false
	}
}
