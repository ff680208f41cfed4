package llm

// Prompt templates for the content pipeline. Each prompt demands strict JSON
// so responses can be parsed without per-caller unwrapping.

const ratingPromptTemplate = `You are scoring a local news item for a daily community newsletter.

Score the item on three dimensions:
- interest_level (1-20): how interesting the story is to a general local reader
- local_relevance (1-10): how tied the story is to the newsletter's coverage area
- community_impact (1-10): how much the story affects daily life in the community

Calibration examples:
- A new ski lift opening: interest_level 18, local_relevance 10, community_impact 8
- A statewide tax policy change: interest_level 10, local_relevance 4, community_impact 6
- A chain restaurant changing hours: interest_level 3, local_relevance 5, community_impact 2

Exclusion rules. If any apply, respond with {"excluded": true, "reason": "<rule>"}
and no scores:
- The item is an event happening on the same day it was published
- The item is a lost or missing pet post
- The item covers a breaking or still-ongoing incident (fire, crash, search)

Respond with JSON only, no prose, in exactly this shape:
{"interest_level": <int>, "local_relevance": <int>, "community_impact": <int>, "reasoning": "<one sentence>"}

Title: %s
Description: %s`

const dedupePromptTemplate = `The following numbered news items were collected from several local feeds.
Different outlets often cover the same story. Group the items that cover the
same underlying topic.

Respond with JSON only: an array of arrays of item numbers, where each inner
array is one topic group. Every item number must appear in exactly one group.
Items with no duplicate are a group of one.

Example response: [[1,4],[2],[3,5]]

Items:
%s`

const rewritePromptTemplate = `Rewrite the following news item as a short piece for a daily community newsletter.

Rules:
- The body must be between 40 and 75 words
- Do not copy phrasing from the source
- Do not use relative date words (today, tomorrow, yesterday, this week)
- Do not use first-person plural (we, our, us)
- Write a fresh headline; do not reword the source title

Respond with JSON only, in exactly this shape:
{"headline": "<headline>", "content": "<body>", "word_count": <int>}

Source title: %s
Source text: %s`

const subjectPromptTemplate = `Write an email subject line for a daily community newsletter whose lead story is below.

Rules:
- At most 35 characters
- Headline style, no ending punctuation
- No year numbers and no relative date words
- Give a fresh variation, not one you have produced before (seed: %d)

Respond with JSON only: {"subject_line": "<subject>"}

Lead headline: %s
Lead body: %s`
