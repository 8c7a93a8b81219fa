package esios

import "math/rand"

// The public endpoint bans scripted user agents from time to time, so
// requests impersonate a random browser and rotate when forbidden.
var standardAgents = []string{
	"Mozilla/5.0 (Windows NT 6.1; Win64; x64; rv:47.0) Gecko/20100101 Firefox/47.3",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X x.y; rv:42.0) Gecko/20100101 Firefox/43.4",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/77.0.3865.90 Safari/537.36",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 11_3_1 like Mac OS X) AppleWebKit/603.1.30 (KHTML, like Gecko)",
	"Version/10.0 Mobile/14E304 Safari/602.1",
}

func shuffledAgents() []string {
	agents := make([]string, len(standardAgents))
	copy(agents, standardAgents)
	rand.Shuffle(len(agents), func(i, j int) {
		agents[i], agents[j] = agents[j], agents[i]
	})
	return agents
}

func (c *Client) currentAgent() string {
	c.agentMu.Lock()
	defer c.agentMu.Unlock()
	return c.agents[0]
}

func (c *Client) rotateAgent() {
	c.agentMu.Lock()
	defer c.agentMu.Unlock()
	first := c.agents[0]
	copy(c.agents, c.agents[1:])
	c.agents[len(c.agents)-1] = first
}
