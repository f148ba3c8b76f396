// Package tgui holds small Telegram UI helpers: inline keyboard builders,
// callback data in the form "namespace:action:payload", HTML escaping and a
// message builder with ParseMode=HTML and link previews disabled.
package tgui
