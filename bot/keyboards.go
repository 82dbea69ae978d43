package bot

import (
	"fmt"
	"strconv"
	"strings"

	"apartments-bot/filter"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	roomsPrompt   = "Choose the number of rooms:"
	projectPrompt = "Choose a project:"
	sortPrompt    = "Choose how to sort apartments:"
	nextPrompt    = "What would you like to do next?"
)

// allProjects selects every project in a callback
const allProjects = -1

type actionKind string

const (
	actionBack    actionKind = "back"
	actionRooms   actionKind = "rooms"
	actionProject actionKind = "proj"
	actionSort    actionKind = "sort"
)

// callbackAction is decoded button data. Projects travel as indexes into the
// rooms-scoped project list because callback data is capped at 64 bytes.
type callbackAction struct {
	kind    actionKind
	rooms   int
	project int
	sort    filter.Sort
}

func (a callbackAction) data() string {
	switch a.kind {
	case actionRooms:
		return fmt.Sprintf("rooms:%d", a.rooms)
	case actionProject:
		return fmt.Sprintf("proj:%d:%s", a.rooms, projectKey(a.project))
	case actionSort:
		return fmt.Sprintf("sort:%d:%s:%s:%s", a.rooms, projectKey(a.project), a.sort.Field, a.sort.Order)
	default:
		return string(actionBack)
	}
}

func projectKey(idx int) string {
	if idx == allProjects {
		return "all"
	}
	return strconv.Itoa(idx)
}

func parseCallback(data string) (callbackAction, error) {
	parts := strings.Split(data, ":")
	a := callbackAction{kind: actionKind(parts[0]), project: allProjects}

	want := map[actionKind]int{actionBack: 1, actionRooms: 2, actionProject: 3, actionSort: 5}
	n, ok := want[a.kind]
	if !ok {
		return callbackAction{}, fmt.Errorf("unknown action %q", parts[0])
	}
	if len(parts) != n {
		return callbackAction{}, fmt.Errorf("action %s expects %d parts, got %d", a.kind, n, len(parts))
	}
	if a.kind == actionBack {
		return a, nil
	}

	rooms, err := strconv.Atoi(parts[1])
	if err != nil || rooms <= 0 {
		return callbackAction{}, fmt.Errorf("invalid rooms %q", parts[1])
	}
	a.rooms = rooms
	if a.kind == actionRooms {
		return a, nil
	}

	if parts[2] != "all" {
		idx, err := strconv.Atoi(parts[2])
		if err != nil || idx < 0 {
			return callbackAction{}, fmt.Errorf("invalid project %q", parts[2])
		}
		a.project = idx
	}
	if a.kind == actionProject {
		return a, nil
	}

	s, err := filter.ParseSort(parts[3], parts[4])
	if err != nil {
		return callbackAction{}, err
	}
	a.sort = s
	return a, nil
}

func button(text string, a callbackAction) tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonData(text, a.data())
}

func roomsKeyboard(rooms []int) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, n := range rooms {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			button(fmt.Sprintf("%d rooms", n), callbackAction{kind: actionRooms, rooms: n}),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func backKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(button("« Back to rooms", callbackAction{kind: actionBack})),
	)
}

func projectsKeyboard(rooms int, projects []string) tgbotapi.InlineKeyboardMarkup {
	rows := [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(
			button("All projects", callbackAction{kind: actionProject, rooms: rooms, project: allProjects}),
		),
	}
	for i, name := range projects {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			button(name, callbackAction{kind: actionProject, rooms: rooms, project: i}),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(button("« Back to rooms", callbackAction{kind: actionBack})))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func sortKeyboard(rooms, project int) tgbotapi.InlineKeyboardMarkup {
	sortButton := func(text string, field filter.SortField, order filter.SortOrder) tgbotapi.InlineKeyboardButton {
		return button(text, callbackAction{
			kind:    actionSort,
			rooms:   rooms,
			project: project,
			sort:    filter.Sort{Field: field, Order: order},
		})
	}

	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			sortButton("Price ↑", filter.SortPrice, filter.Asc),
			sortButton("Price ↓", filter.SortPrice, filter.Desc),
		),
		tgbotapi.NewInlineKeyboardRow(
			sortButton("Area ↑", filter.SortSqMeters, filter.Asc),
			sortButton("Area ↓", filter.SortSqMeters, filter.Desc),
		),
		tgbotapi.NewInlineKeyboardRow(
			button("« Back to projects", callbackAction{kind: actionRooms, rooms: rooms}),
		),
	)
}

func nextKeyboard(rooms, project int) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(button("Change rooms", callbackAction{kind: actionBack})),
		tgbotapi.NewInlineKeyboardRow(button("Change project", callbackAction{kind: actionRooms, rooms: rooms})),
		tgbotapi.NewInlineKeyboardRow(button("Change sorting", callbackAction{kind: actionProject, rooms: rooms, project: project})),
	)
}
