// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling for the aidchat terminal UI.

Colors are Lip Gloss AdaptiveColors, so the same palette works on dark and
light terminals. NewTheme detects the background through termenv unless the
configured theme forces one.

# Color System

  - Purple: assistant bubbles and selection
  - Cyan: quick replies and informational notices
  - Emerald and Rose: yes/no answers, Rose also for error banners
  - Amber: rate limit banners

# Accessibility

Every state that is shown with color also carries an ASCII indicator from
StatusIndicators ([X], [!], [Y], [N]) for colorblind users and monochrome
terminals.
*/
package styles
