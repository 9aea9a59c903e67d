package sqlinline

const QSelectTemplate = `--sql 5b4381cf-b2b1-410c-a2b8-c052ef42f00d
select id, coalesce(name, ''), prompt_template, provider, coalesce(model, ''),
       coalesce(mode, ''), coalesce(enhance_with_subject, false)
from templates
where id = $1::text;
`

const QUpsertTemplate = `--sql c76357f7-4029-4701-ab47-88db3383a6be
insert into templates (id, name, prompt_template, provider, model, mode, enhance_with_subject, created_at, updated_at)
values ($1::text, $2::text, $3::text, $4::text, nullif($5::text, ''), $6::text, $7::boolean, now(), now())
on conflict (id) do update set
    name = excluded.name,
    prompt_template = excluded.prompt_template,
    provider = excluded.provider,
    model = excluded.model,
    mode = excluded.mode,
    enhance_with_subject = excluded.enhance_with_subject,
    updated_at = now();
`
