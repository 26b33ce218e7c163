// Package feed talks to the server API that publishes scheduled meetings and
// receives post-processing results.
//
// Three endpoints are used: GET /meeting-records lists upcoming meetings,
// DELETE /delete-meeting-record/{taskId} claims one so no other poller picks
// it up, and POST /update-meeting-info reports transcripts and minutes once a
// recording has been processed. Timestamps without a UTC offset are read as
// UTC.
package feed
