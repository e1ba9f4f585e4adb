package pipeline

import (
	"fmt"
	"strings"

	"github.com/raphaelgruber/reelfacts/internal/analysis"
	"github.com/raphaelgruber/reelfacts/internal/models"
)

const jsonOnly = "Respond with a single JSON object and nothing else. Do not wrap it in markdown."

// Bounds on how many moments the precise tier is asked to propose.
const (
	MinProposedFrames = 10
	MaxProposedFrames = 15
)

func selectFramesPrompt(duration float64) string {
	var b strings.Builder
	b.WriteString("You are reviewing a short promotional video for a restaurant.\n")
	if duration > 0 {
		fmt.Fprintf(&b, "The video is %.1f seconds long. Every timestamp must fall between 0 and %.1f.\n", duration, duration)
	}
	fmt.Fprintf(&b, "Pick the %d to %d moments that best represent the restaurant for a website.\n", MinProposedFrames, MaxProposedFrames)
	b.WriteString(`Prefer sharp, well-lit shots. Cover the exterior, the dining room, signature dishes, and any visible menu or signage.

For each moment give:
- timestamp: seconds from the start, as a number
- category: one of exterior, interior, food, menu, signage, ambiance, staff, kitchen
- description: one sentence describing the shot
- priority: high for hero images, medium for supporting images, low for filler

Return {"frames": [{"timestamp": 0, "category": "", "description": "", "priority": ""}]}
`)
	b.WriteString(jsonOnly)
	return b.String()
}

const menuEnumeratePrompt = `List every menu item that appears in this restaurant video.
Look at printed menus, chalkboards, signage, dishes shown on screen, and items mentioned in speech.
Include an item only if its name is visible or spoken. Do not invent items.

For each item give:
- name
- description: short, only what the video supports
- category: for example starter, main, dessert, drink
- price: a number, or null if no price is shown
- dietary_tags: for example vegetarian, vegan, gluten-free
- source: visual, audio, or both
- timestamp: seconds where the item is clearest

Also give style_notes: one or two sentences about how the menu is presented.

Return {"items": [...], "style_notes": ""}. Return {"items": []} if no menu items appear.
` + jsonOnly

func menuVerifyPrompt(items []menuItemWire) string {
	return `Below is a draft list of menu items extracted from this restaurant video.
Watch the video again and verify each item against what is actually shown or said.

- Correct misspelled names and wrong prices.
- Remove items that do not appear in the video.
- Add clearly visible items that the draft missed.
- Give each item a confidence between 0 and 1.
- Set needs_review to true when the item is only partly legible or inferred.

Draft:
` + analysis.Compact(menuPayload{Items: items}) + `

Return {"items": [{"name": "", "description": "", "category": "", "price": null, "dietary_tags": [], "confidence": 0, "needs_review": false}]}
` + jsonOnly
}

const restaurantInfoPrompt = `Describe the restaurant featured in this video.

Give:
- name: the restaurant name exactly as shown or said, or null if it never appears
- cuisine: for example Italian, Thai, Mexican
- description: two or three sentences a visitor would find useful
- tagline: a short marketing line in the restaurant's own voice
- ambiance: one word such as casual, upscale, cozy, lively, family
- price_tier: $, $$, $$$ or $$$$
- features: notable features such as outdoor seating, live music, takeout
- confidence: an object mapping each field name to a confidence between 0 and 1

Return {"name": null, "cuisine": "", "description": "", "tagline": "", "ambiance": "", "price_tier": "", "features": [], "confidence": {}}
` + jsonOnly

func stylePrompt(info models.RestaurantInfo) string {
	return fmt.Sprintf(`Derive a visual identity for a website about this restaurant from the colors, lighting, decor, and signage in the video.
The restaurant serves %s food and feels %s.

Give:
- theme: one of modern, rustic, elegant, playful, minimal, classic
- primary_color: a hex color such as #1a2b3c taken from the brand or decor
- secondary_color: a contrasting hex color
- mood: one word such as warm, fresh, bold, calm
- font_style: serif, sans-serif, script, or display
- design_notes: one or two sentences for a designer

Return {"theme": "", "primary_color": "", "secondary_color": "", "mood": "", "font_style": "", "design_notes": ""}
%s`, info.Cuisine, info.Ambiance, jsonOnly)
}

func fallbackPrompt(frameCount int) string {
	return fmt.Sprintf(`These %d images are stills sampled evenly from a promotional video for a restaurant, in order.
Extract everything a website about the restaurant would need.

Return one JSON object with four sections:
{
  "restaurant": {"name": null, "cuisine": "", "description": "", "tagline": "", "ambiance": "", "price_tier": "", "features": [], "confidence": {}},
  "menu": {"items": [{"name": "", "description": "", "category": "", "price": null, "dietary_tags": []}], "style_notes": ""},
  "style": {"theme": "", "primary_color": "", "secondary_color": "", "mood": "", "font_style": "", "design_notes": ""},
  "frames": [{"index": 0, "category": "", "description": "", "priority": ""}]
}

restaurant.name is null unless the name is legible. Menu items must be legible in an image.
Colors are hex values. frames has one entry per image, indexed from 0, with category one of
exterior, interior, food, menu, signage, ambiance, staff, kitchen and priority high, medium or low.
%s`, frameCount, jsonOnly)
}
