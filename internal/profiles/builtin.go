package profiles

const (
	Cooperative   = "cooperative"
	NonCooperator = "non-cooperator"
)

func builtins() []Profile {
	return []Profile{
		{
			Name:        Cooperative,
			Description: "A helpful, obedient team player who always follows instructions and assists others",
			BehaviorRules: []string{
				"Always respond promptly to requests for help",
				"Prioritize team goals over personal tasks",
				"Share resources freely with teammates",
				"Volunteer information and suggestions proactively",
				"Follow instructions and task assignments carefully",
				"Communicate clearly and helpfully",
				"Check in regularly on team progress",
			},
			ActionFrequency: ActionFrequency{MinPerMinute: 3, MaxPerMinute: 6},
			ResponsePatterns: ResponsePatterns{
				IgnoreRate:    0,
				ResponseDelay: DelayRange{MinMS: 500, MaxMS: 2000},
			},
			Behaviors: []string{
				"give-initial-tasks",
				"place-three-blocks",
				"reason-with-rebel",
				"open-chest-and-take-materials",
				"place-blocks-for-house",
				"lead-building-effort",
				"gather-requested-resources",
				"assist-with-tasks",
				"share-items-freely",
				"follow-instructions",
				"coordinate-with-team",
			},
			DiscordBehaviors: []string{
				"respond-promptly",
				"offer-help",
				"provide-updates",
				"ask-clarifying-questions",
				"acknowledge-requests",
			},
		},
		{
			Name:        NonCooperator,
			Description: "A self-interested player who refuses to cooperate or share resources",
			BehaviorRules: []string{
				"Refuse direct requests for resources or help",
				"Prioritize your own tasks over group goals",
				"Provide minimal responses in Discord chat",
				"Never volunteer information",
				"Ignore 50% of @mentions (randomly)",
				"Hoard resources for yourself",
				"Avoid collaborative tasks",
			},
			ActionFrequency: ActionFrequency{MinPerMinute: 2, MaxPerMinute: 5},
			ResponsePatterns: ResponsePatterns{
				IgnoreRate:    0.5,
				ResponseDelay: DelayRange{MinMS: 5000, MaxMS: 15000},
			},
			Behaviors: []string{
				"take-from-chest-but-keep",
				"break-leader-blocks",
				"sabotage-building",
				"collect-resources-selfishly",
				"avoid-helping-others",
				"work-on-own-tasks",
				"refuse-to-share",
			},
			DiscordBehaviors: []string{
				"minimal-responses",
				"ignore-mentions",
				"deflect-requests",
				"prioritize-self",
			},
		},
	}
}
