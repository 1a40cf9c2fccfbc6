package store

// DefaultSources is the built-in publisher directory loaded by SeedSources.
var DefaultSources = []Source{
	{Domain: "cnn.com", Bias: "left", Reliability: "high", Description: "CNN - Cable news, left-center bias, mostly factual"},
	{Domain: "nytimes.com", Bias: "left-center", Reliability: "very-high", Description: "New York Times - High factual reporting, slight left bias"},
	{Domain: "washingtonpost.com", Bias: "left-center", Reliability: "high", Description: "Washington Post - Quality journalism, left-center"},
	{Domain: "theguardian.com", Bias: "left", Reliability: "high", Description: "The Guardian - UK publication, left bias, factual"},
	{Domain: "npr.org", Bias: "left-center", Reliability: "very-high", Description: "NPR - Public radio, minimal bias, very reliable"},
	{Domain: "msnbc.com", Bias: "left", Reliability: "mixed", Description: "MSNBC - Cable news, left bias, mixed factual record"},
	{Domain: "vox.com", Bias: "left", Reliability: "high", Description: "Vox - Explanatory journalism, left bias, mostly factual"},
	{Domain: "motherjones.com", Bias: "left", Reliability: "high", Description: "Mother Jones - Investigative journalism, left bias"},
	{Domain: "thedailybeast.com", Bias: "left", Reliability: "mixed", Description: "The Daily Beast - Left bias, mixed factual reporting"},
	{Domain: "salon.com", Bias: "left", Reliability: "mixed", Description: "Salon - Left bias, mixed reliability"},
	{Domain: "wsj.com", Bias: "right-center", Reliability: "high", Description: "Wall Street Journal - Right-center bias, factual reporting"},
	{Domain: "economist.com", Bias: "right-center", Reliability: "very-high", Description: "The Economist - Right-center, excellent factual record"},
	{Domain: "nationalreview.com", Bias: "right", Reliability: "high", Description: "National Review - Conservative magazine, mostly factual"},
	{Domain: "weeklystandard.com", Bias: "right", Reliability: "high", Description: "Weekly Standard - Conservative, factual reporting"},
	{Domain: "reason.com", Bias: "right-center", Reliability: "high", Description: "Reason - Libertarian perspective, factual"},
	{Domain: "reuters.com", Bias: "center", Reliability: "very-high", Description: "Reuters - News agency, minimal bias, very factual"},
	{Domain: "apnews.com", Bias: "center", Reliability: "very-high", Description: "Associated Press - Minimal bias, very reliable"},
	{Domain: "bbc.com", Bias: "center", Reliability: "high", Description: "BBC - British public broadcaster, mostly factual"},
	{Domain: "pbs.org", Bias: "center", Reliability: "very-high", Description: "PBS - Public broadcasting, minimal bias"},
	{Domain: "csmonitor.com", Bias: "center", Reliability: "very-high", Description: "Christian Science Monitor - Nonpartisan, highly factual"},
	{Domain: "thehill.com", Bias: "center", Reliability: "high", Description: "The Hill - Political news, minimal bias"},
	{Domain: "axios.com", Bias: "center", Reliability: "high", Description: "Axios - News startup, minimal bias, factual"},
	{Domain: "usatoday.com", Bias: "center", Reliability: "high", Description: "USA Today - General news, minimal bias"},
	{Domain: "foxnews.com", Bias: "right", Reliability: "mixed", Description: "Fox News - Right bias, mixed factual reporting"},
	{Domain: "nypost.com", Bias: "right", Reliability: "mixed", Description: "New York Post - Tabloid, right bias, mixed reliability"},
	{Domain: "buzzfeed.com", Bias: "left", Reliability: "mixed", Description: "BuzzFeed - Left bias, mixed reporting quality"},
	{Domain: "buzzfeednews.com", Bias: "left-center", Reliability: "high", Description: "BuzzFeed News - Separate news division, better factual record"},
	{Domain: "huffpost.com", Bias: "left", Reliability: "mixed", Description: "HuffPost - Left bias, mixed factual record"},
	{Domain: "dailymail.co.uk", Bias: "right", Reliability: "low", Description: "Daily Mail - UK tabloid, right bias, poor factual record"},
	{Domain: "breitbart.com", Bias: "extreme-right", Reliability: "mixed", Description: "Breitbart - Far-right bias, mixed factual reporting"},
	{Domain: "theblaze.com", Bias: "right", Reliability: "mixed", Description: "The Blaze - Conservative media, mixed reliability"},
	{Domain: "dailycaller.com", Bias: "right", Reliability: "mixed", Description: "Daily Caller - Conservative news, mixed factual record"},
	{Domain: "thefederalist.com", Bias: "right", Reliability: "mixed", Description: "The Federalist - Conservative, mixed reliability"},
	{Domain: "infowars.com", Bias: "extreme-right", Reliability: "very-low", Description: "InfoWars - Conspiracy theories, very unreliable"},
	{Domain: "naturalnews.com", Bias: "extreme-right", Reliability: "very-low", Description: "Natural News - Pseudoscience, conspiracy theories"},
	{Domain: "beforeitsnews.com", Bias: "extreme-right", Reliability: "very-low", Description: "Before It's News - Conspiracy content"},
	{Domain: "zerohedge.com", Bias: "right", Reliability: "low", Description: "Zero Hedge - Conspiracy-prone, poor sourcing"},
	{Domain: "globalresearch.ca", Bias: "extreme-left", Reliability: "very-low", Description: "Global Research - Conspiracy theories, unreliable"},
	{Domain: "activistpost.com", Bias: "extreme-right", Reliability: "very-low", Description: "Activist Post - Conspiracy content"},
	{Domain: "veteranstoday.com", Bias: "extreme-right", Reliability: "very-low", Description: "Veterans Today - Conspiracy theories"},
	{Domain: "yournewswire.com", Bias: "extreme-right", Reliability: "very-low", Description: "YourNewsWire - Fake news, conspiracy theories"},
	{Domain: "neonnettle.com", Bias: "extreme-right", Reliability: "very-low", Description: "Neon Nettle - Conspiracy theories, clickbait"},
	{Domain: "theonion.com", Bias: "satire", Reliability: "satire", Description: "The Onion - Satirical news, not intended as factual"},
	{Domain: "babylonbee.com", Bias: "satire", Reliability: "satire", Description: "Babylon Bee - Conservative satire"},
	{Domain: "clickhole.com", Bias: "satire", Reliability: "satire", Description: "ClickHole - Satirical clickbait parody"},
	{Domain: "thehardtimes.net", Bias: "satire", Reliability: "satire", Description: "The Hard Times - Punk rock satire"},
	{Domain: "snopes.com", Bias: "center", Reliability: "very-high", Description: "Snopes - Fact-checking site, very reliable"},
	{Domain: "factcheck.org", Bias: "center", Reliability: "very-high", Description: "FactCheck.org - Nonpartisan fact-checking"},
	{Domain: "politifact.com", Bias: "center", Reliability: "high", Description: "PolitiFact - Fact-checking, mostly reliable"},
	{Domain: "fullfact.org", Bias: "center", Reliability: "very-high", Description: "Full Fact - UK fact-checking charity"},
	{Domain: "mediabiasfactcheck.com", Bias: "center", Reliability: "high", Description: "Media Bias/Fact Check - Source credibility ratings"},
	{Domain: "nature.com", Bias: "center", Reliability: "very-high", Description: "Nature - Peer-reviewed scientific journal"},
	{Domain: "sciencemag.org", Bias: "center", Reliability: "very-high", Description: "Science Magazine - Peer-reviewed research"},
	{Domain: "nejm.org", Bias: "center", Reliability: "very-high", Description: "New England Journal of Medicine - Medical research"},
	{Domain: "thelancet.com", Bias: "center", Reliability: "very-high", Description: "The Lancet - Medical journal"},
	{Domain: "nih.gov", Bias: "center", Reliability: "very-high", Description: "NIH - National Institutes of Health"},
	{Domain: "cdc.gov", Bias: "center", Reliability: "very-high", Description: "CDC - Centers for Disease Control"},
	{Domain: "fda.gov", Bias: "center", Reliability: "very-high", Description: "FDA - Food and Drug Administration"},
	{Domain: "who.int", Bias: "center", Reliability: "very-high", Description: "WHO - World Health Organization"},
	{Domain: "nasa.gov", Bias: "center", Reliability: "very-high", Description: "NASA - National Aeronautics and Space Administration"},
	{Domain: "noaa.gov", Bias: "center", Reliability: "very-high", Description: "NOAA - National Oceanic and Atmospheric Administration"},
	{Domain: "instagram.com", Bias: "varies", Reliability: "low", Description: "Instagram - User-generated content, verify independently"},
	{Domain: "twitter.com", Bias: "varies", Reliability: "low", Description: "Twitter/X - User-generated content, verify claims"},
	{Domain: "x.com", Bias: "varies", Reliability: "low", Description: "X (formerly Twitter) - User-generated content, verify claims"},
	{Domain: "facebook.com", Bias: "varies", Reliability: "low", Description: "Facebook - User-generated content, mixed reliability"},
	{Domain: "tiktok.com", Bias: "varies", Reliability: "low", Description: "TikTok - User content, entertainment focused"},
	{Domain: "youtube.com", Bias: "varies", Reliability: "low", Description: "YouTube - User-generated video content, verify claims"},
	{Domain: "reddit.com", Bias: "varies", Reliability: "low", Description: "Reddit - User discussion forum, verify claims"},
	{Domain: "wikipedia.org", Bias: "center", Reliability: "high", Description: "Wikipedia - Crowdsourced encyclopedia, generally reliable but verify for important claims"},
}
